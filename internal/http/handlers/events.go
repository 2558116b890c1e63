package handlers

import "net/http"

// Events upgrades to a websocket and streams the caller's render
// lifecycle events until the connection closes.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == 0 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	a.Gateway.ServeUser(w, r, userID)
}
