// Package containerhost launches and supervises the rootless container
// each session's application runs inside, using bubblewrap (bwrap) Linux
// namespaces for filesystem and process isolation.
//
// A Host exec's bwrap with a namespace profile that exposes nothing of
// the parent filesystem except what the application needs: its binary,
// a per-session home directory, and three sockets the container process
// connects back out through: a Wayland display socket, an optional
// X11 socket for XWayland, and a PulseAudio/PipeWire sink socket. The
// compositor and audio pipeline bind those sockets before the container
// starts, so from the sandboxed process's point of view they are
// ordinary system sockets with no awareness of the isolation around
// them.
//
// Host does not interpret what the application does once started; it
// only owns the namespace, the mounts, and the child process's exit
// status. Session-level concerns (attach/detach, frame caching) live in
// the session package.
package containerhost
