// Package tools implements the fixed registry of actions the remote model
// may invoke during a session: navigating the dashboard to a view,
// composing an email, and switching the assistant voice by ordinal.
//
// Inbound requests are parsed into a closed set of call variants with
// validated arguments. The Dispatcher executes each variant through the
// host-provided Actions and Composer and always produces exactly one
// Response per request, so the remote side is never left waiting:
//
//	d := tools.NewDispatcher(tools.Config{
//	    Actions: host,
//	    Voices:  profile.Voices,
//	    Views:   profile.Views,
//	})
//	responses := d.DispatchAll(ctx, requests)
package tools
