// Package roomkit keeps a local view of a multiparty room consistent
// with a remote signaling server: participants, track publications,
// speaker and quality metrics, recording state. It survives transport
// drops by resuming or rejoining the session, and fans state changes
// out to registered observers in mutation order, exactly once.
package roomkit
