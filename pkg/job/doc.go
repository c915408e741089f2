// Package job provides the job descriptor: a target name plus arguments and
// pass-through execution options, convertible to and from a durable
// core.Task.
//
// A descriptor is either plain or bound to a callback context
// (KindCallback). Callback jobs carry the owning context id, their own id
// and the names of hooks to fire on job events such as "success".
package job
