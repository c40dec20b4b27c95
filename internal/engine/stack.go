package engine

import (
	"fmt"
	"strings"
)

// NodeKind tags a work stack entry.
type NodeKind string

const (
	NodeMain   NodeKind = "MAIN"
	NodeSub    NodeKind = "SUB"
	NodeResume NodeKind = "RESUME"
)

// TaskNode is one unit of decomposition work.
type TaskNode struct {
	Depth int
	Task  string
	Kind  NodeKind
}

// Prefix labels the events of the node, e.g. "[>>>>] D2".
func (n TaskNode) Prefix() string {
	return fmt.Sprintf("[%s] D%d", strings.Repeat(">>", n.Depth), n.Depth)
}

// WorkStack is the LIFO of pending nodes.
type WorkStack struct {
	nodes []TaskNode
}

// NewWorkStack creates a stack holding the MAIN node for task.
func NewWorkStack(task string) *WorkStack {
	return &WorkStack{nodes: []TaskNode{{Depth: 1, Task: task, Kind: NodeMain}}}
}

// Push adds a node on top.
func (s *WorkStack) Push(n TaskNode) {
	s.nodes = append(s.nodes, n)
}

// Pop removes the top node.
func (s *WorkStack) Pop() (TaskNode, bool) {
	if len(s.nodes) == 0 {
		return TaskNode{}, false
	}
	n := s.nodes[len(s.nodes)-1]
	s.nodes = s.nodes[:len(s.nodes)-1]
	return n, true
}

// Len returns the number of pending nodes.
func (s *WorkStack) Len() int {
	return len(s.nodes)
}

// Split schedules the sub-tasks of parent. The RESUME node goes in first so
// it pops after every descendant, and the children go in reverse so the
// first sub-task pops first.
func (s *WorkStack) Split(parent TaskNode, subTasks []string) {
	s.Push(TaskNode{Depth: parent.Depth, Task: parent.Task, Kind: NodeResume})
	for i := len(subTasks) - 1; i >= 0; i-- {
		s.Push(TaskNode{Depth: parent.Depth + 1, Task: subTasks[i], Kind: NodeSub})
	}
}
