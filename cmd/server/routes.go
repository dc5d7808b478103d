package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		app.writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND", "message": "no such route"})
	})

	router.HandlerFunc(http.MethodGet, "/health", app.handleHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	router.HandlerFunc(http.MethodGet, "/ws", app.requirePlayer(app.handleWebSocket))

	player := func(method, path string, h http.HandlerFunc) {
		router.HandlerFunc(method, path, app.requirePlayer(h))
	}

	player(http.MethodPost, "/api/games", app.createGame)
	player(http.MethodGet, "/api/games/:id", app.getGame)
	player(http.MethodPost, "/api/games/:id/join", app.joinGame)
	player(http.MethodPost, "/api/games/:id/moves", app.submitMove)
	player(http.MethodPost, "/api/games/:id/resign", app.resign)
	player(http.MethodPost, "/api/games/:id/timeout", app.claimTimeout)

	player(http.MethodGet, "/api/rooms/:code", app.getRoom)
	player(http.MethodGet, "/api/rooms/:code/qr", app.roomQRCode)
	player(http.MethodPost, "/api/rooms/:code/join", app.joinRoom)
	player(http.MethodPost, "/api/rooms/:code/training/join", app.joinTrainingRoom)

	player(http.MethodPost, "/api/invitations", app.sendInvitation)
	player(http.MethodGet, "/api/invitations", app.listInvitations)
	player(http.MethodGet, "/api/invitations/:id", app.getInvitation)
	player(http.MethodPost, "/api/invitations/:id/accept", app.acceptInvitation)
	player(http.MethodPost, "/api/invitations/:id/decline", app.declineInvitation)
	player(http.MethodPost, "/api/invitations/:id/cancel", app.cancelInvitation)

	player(http.MethodPost, "/api/trainings", app.createTraining)
	player(http.MethodGet, "/api/trainings/:id", app.getTraining)
	player(http.MethodPost, "/api/trainings/:id/moves", app.trainingMove)
	player(http.MethodPost, "/api/trainings/:id/interactive", app.setInteractive)
	player(http.MethodPost, "/api/trainings/:id/position", app.setTrainingPosition)
	player(http.MethodPost, "/api/trainings/:id/pause", app.pauseTraining)
	player(http.MethodPost, "/api/trainings/:id/resume", app.resumeTraining)
	player(http.MethodPost, "/api/trainings/:id/end", app.endTraining)
	player(http.MethodPost, "/api/trainings/:id/leave", app.leaveTraining)

	router.HandlerFunc(http.MethodPost, "/admin/games/:id/end", app.requireAPIKey(app.adminEndGame))
	router.HandlerFunc(http.MethodPost, "/admin/games/:id/abandon", app.requireAPIKey(app.adminAbandonGame))
	router.HandlerFunc(http.MethodPost, "/admin/sweep", app.requireAPIKey(app.adminSweep))
	router.HandlerFunc(http.MethodPost, "/admin/tokens", app.requireAPIKey(app.adminIssueToken))

	return app.recoverPanic(app.logRequests(router))
}
