package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/manager"
	"github.com/tecu23/chess-sessions/pkg/messages"
	"github.com/tecu23/chess-sessions/pkg/repository"
	"github.com/tecu23/chess-sessions/pkg/server"
)

const qrCodeSize = 256

func (app *application) gameResponse(w http.ResponseWriter, r *http.Request, status int, s *game.Session, err error) {
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, status, messages.GameState(s, app.Manager.Now()))
}

func (app *application) trainingResponse(w http.ResponseWriter, r *http.Request, status int, t *game.Training, err error) {
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, status, messages.TrainingState(t))
}

func (app *application) invitationResponse(w http.ResponseWriter, r *http.Request, status int, inv *invitation.Invitation, err error) {
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, status, messages.Invitation(inv, app.Manager.Now()))
}

func (app *application) createGame(w http.ResponseWriter, r *http.Request) {
	var req messages.CreateGameRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	s, err := app.Manager.CreateGame(r.Context(), game.CreateParams{
		HostID:          playerID(r),
		ColorPreference: req.ColorPreference,
		Mode:            req.Mode,
		Clock:           req.Clock,
	})
	app.gameResponse(w, r, http.StatusCreated, s, err)
}

func (app *application) getGame(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.GetGame(r.Context(), param(r, "id"))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) joinGame(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.JoinGame(r.Context(), param(r, "id"), playerID(r))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) submitMove(w http.ResponseWriter, r *http.Request) {
	var req messages.MoveRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	s, err := app.Manager.SubmitMove(r.Context(), param(r, "id"), playerID(r), req.Move)
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) resign(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.Resign(r.Context(), param(r, "id"), playerID(r))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) claimTimeout(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.ClaimTimeout(r.Context(), param(r, "id"), playerID(r))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

// getRoom answers with the game or training behind a room code
func (app *application) getRoom(w http.ResponseWriter, r *http.Request) {
	ref, err := app.Manager.LookupRoom(r.Context(), param(r, "code"))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	if ref.Kind == repository.RoomTraining {
		t, err := app.Manager.GetTraining(r.Context(), ref.ID)
		app.trainingResponse(w, r, http.StatusOK, t, err)
		return
	}

	s, err := app.Manager.GetGame(r.Context(), ref.ID)
	app.gameResponse(w, r, http.StatusOK, s, err)
}

// roomQRCode renders the room's join link as a PNG
func (app *application) roomQRCode(w http.ResponseWriter, r *http.Request) {
	code := manager.NormalizeRoomCode(param(r, "code"))
	if _, err := app.Manager.LookupRoom(r.Context(), code); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	link := fmt.Sprintf("%s/join/%s", strings.TrimRight(app.Config.PublicURL, "/"), code)
	png, err := qrcode.Encode(link, qrcode.Medium, qrCodeSize)
	if err != nil {
		app.errorResponse(w, r, fmt.Errorf("encode qr code: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		app.Logger.Debug("Failed to write qr code", zap.Error(err))
	}
}

func (app *application) joinRoom(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.JoinGameByRoomCode(r.Context(), param(r, "code"), playerID(r))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) joinTrainingRoom(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.JoinTrainingByRoomCode(r.Context(), param(r, "code"), playerID(r))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) sendInvitation(w http.ResponseWriter, r *http.Request) {
	var req messages.SendInvitationRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	inv, err := app.Manager.SendInvitation(r.Context(), playerID(r), req.RecipientID, req.Params())
	app.invitationResponse(w, r, http.StatusCreated, inv, err)
}

// listInvitations returns the caller's actionable invitations, sent and
// received
func (app *application) listInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := app.Manager.ListInvitations(r.Context(), playerID(r))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	now := app.Manager.Now()
	out := make([]messages.InvitationPayload, 0, len(invs))
	for _, inv := range invs {
		out = append(out, messages.Invitation(inv, now))
	}

	app.writeJSON(w, http.StatusOK, out)
}

func (app *application) getInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := app.Manager.GetInvitation(r.Context(), param(r, "id"))
	if err == nil && !inv.Involves(playerID(r)) {
		err = fmt.Errorf("invitation %s: %w", inv.ID, repository.ErrNotFound)
	}
	app.invitationResponse(w, r, http.StatusOK, inv, err)
}

type acceptResponse struct {
	Invitation messages.InvitationPayload `json:"invitation"`
	Game       messages.GameStatePayload  `json:"game"`
}

func (app *application) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	inv, s, err := app.Manager.AcceptInvitation(r.Context(), param(r, "id"), playerID(r))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	now := app.Manager.Now()
	app.writeJSON(w, http.StatusOK, acceptResponse{
		Invitation: messages.Invitation(inv, now),
		Game:       messages.GameState(s, now),
	})
}

func (app *application) declineInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := app.Manager.DeclineInvitation(r.Context(), param(r, "id"), playerID(r))
	app.invitationResponse(w, r, http.StatusOK, inv, err)
}

func (app *application) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := app.Manager.CancelInvitation(r.Context(), param(r, "id"), playerID(r))
	app.invitationResponse(w, r, http.StatusOK, inv, err)
}

func (app *application) createTraining(w http.ResponseWriter, r *http.Request) {
	var req messages.CreateTrainingRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.Manager.CreateTraining(r.Context(), playerID(r), req.Position, req.Interactive)
	app.trainingResponse(w, r, http.StatusCreated, t, err)
}

func (app *application) getTraining(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.GetTraining(r.Context(), param(r, "id"))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) trainingMove(w http.ResponseWriter, r *http.Request) {
	var req messages.MoveRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.Manager.TrainingMove(r.Context(), param(r, "id"), playerID(r), req.Move)
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) setInteractive(w http.ResponseWriter, r *http.Request) {
	var req messages.InteractiveRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.Manager.SetInteractive(r.Context(), param(r, "id"), playerID(r), req.Enabled)
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) setTrainingPosition(w http.ResponseWriter, r *http.Request) {
	var req messages.PositionRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.Manager.SetTrainingPosition(r.Context(), param(r, "id"), playerID(r), req.Position)
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) pauseTraining(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.PauseTraining(r.Context(), param(r, "id"), playerID(r))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) resumeTraining(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.ResumeTraining(r.Context(), param(r, "id"), playerID(r))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) endTraining(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.EndTraining(r.Context(), param(r, "id"), playerID(r))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

func (app *application) leaveTraining(w http.ResponseWriter, r *http.Request) {
	t, err := app.Manager.LeaveTraining(r.Context(), param(r, "id"), playerID(r))
	app.trainingResponse(w, r, http.StatusOK, t, err)
}

// adminEndGame records an externally decided result. An empty winner is a
// draw.
func (app *application) adminEndGame(w http.ResponseWriter, r *http.Request) {
	var req messages.EndGameRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}

	var result game.Result
	if req.Winner != "" {
		winner, err := chess.ParseColor(req.Winner)
		if err != nil {
			app.errorResponse(w, r, fmt.Errorf("%w: %v", game.ErrInvalidParams, err))
			return
		}
		result.Winner = winner
	}
	result.Reason = req.Reason

	s, err := app.Manager.EndGame(r.Context(), param(r, "id"), result)
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) adminAbandonGame(w http.ResponseWriter, r *http.Request) {
	s, err := app.Manager.AbandonGame(r.Context(), param(r, "id"))
	app.gameResponse(w, r, http.StatusOK, s, err)
}

func (app *application) adminSweep(w http.ResponseWriter, r *http.Request) {
	report, err := app.Manager.Sweep(r.Context())
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	app.Logger.Info("Manual sweep", zap.Any("report", report))
	app.writeJSON(w, http.StatusOK, report)
}

type issueTokenRequest struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// adminIssueToken mints a player token for a trusted front end
func (app *application) adminIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.errorResponse(w, r, err)
		return
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		app.errorResponse(w, r, fmt.Errorf("%w: playerId is required", server.ErrMalformed))
		return
	}

	token, err := app.JWT.Generate(req.PlayerID, req.Name)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	app.writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}
