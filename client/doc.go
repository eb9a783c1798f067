// Package client is the calling side of the token protocol. A
// TokenManager owns one session's access token, attaches it to outgoing
// requests, and reacts to the 40001 envelope by refreshing once and
// replaying the requests that piled up behind the expired token. One
// manager serves one session; there is no ambient global state.
package client
