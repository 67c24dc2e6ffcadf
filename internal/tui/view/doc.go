// Package view renders conductor's reports for the terminal.
//
// Each view is a small struct holding the data to show and a Render method
// that returns the styled text. Views never touch the repository; commands
// load the data and pick the view.
//
// # Main Types
//
//   - [TreeView]: a track's work item tree with markers, refs and checkpoints
//   - [TracksView]: the tracks listed in the registry
//   - [PlanView]: a revert plan, its warnings and unresolved ghosts
//   - [SessionView]: the state of a persisted revert session
//   - [ResolutionView]: resolved refs and ghosts of a correlation run
//   - [WorkspacesView]: registered workspaces and their states
//
// # Helpers
//
//   - [RenderError]: what was attempted, why it failed and the repository state
//   - [RenderDiff]: colorizes a unified diff such as a conflict diff
//
// # Basic Usage
//
//	v := view.TreeView{Tree: tree, Meta: meta, ShowCommits: true}
//	fmt.Println(v.Render(80))
package view
