// Package engine turns a user request into a stream of events by driving
// model calls through one of two strategies.
//
// # Pipeline
//
// The pipeline runs a fixed sequence of stages. A selector decides which
// optional stages run, either from the caller's flags or by asking the
// model. Every stage publishes its output as a card, the execution stage
// streams the answer as tokens, and a simulated run of any code in the
// answer can trigger a repair that is appended to the response.
//
// # Decomposition
//
// Decomposition keeps a LIFO work stack of task nodes. Each node is routed
// as simple or complex, complex nodes get a goal and steps, and nodes that
// are not a single step are split into sub-tasks up to Config.MaxDepth.
// Leaves stream their answer and record it in a running context that later
// leaves read, truncated to Config.ContextLimit. After the sub-tasks of a
// node finish, a RESUME entry reports the aggregation.
//
// Both strategies end a successful run with a done event and append the
// user and assistant turns to the session. Failed model calls skip the
// stage they belong to; only cancellation aborts a run.
package engine
