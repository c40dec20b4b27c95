// Package session manages conversations with the orchestration engine.
//
// A Store holds sessions in memory, keyed by ULID. History is append-only:
// every completed run appends the user turn and the assistant turn.
// Changes are published on the event bus as session.created,
// session.updated and session.deleted.
//
//	store := session.NewStore(bus)
//	sess, err := store.Create(ctx, "")          // title "New Operation"
//	err = store.Append(ctx, sess.ID, types.Turn{Role: types.RoleUser, Content: "hi"})
//	infos, err := store.List(ctx)               // most recent first
//
// A Processor runs at most one engine run per session at a time. Further
// requests for the same session queue behind the active one, and Abort
// cancels the active run.
//
//	err := processor.Process(ctx, sess.ID, func(ctx context.Context, runID string) error {
//	    return engine.Run(ctx, req, emitter)
//	})
package session
