/*
Package handler provides HTTP handler functions for ticket creation, closing and listing.
*/
package handler

import (
	"net/http"

	"ticketchat/internal/pkg/auth/jwt"
	"ticketchat/internal/pkg/errs"
	"ticketchat/internal/pkg/logx"
	"ticketchat/internal/pkg/req"
	"ticketchat/internal/pkg/resp"
)

type CreateTicketInput struct {
	// UserID is the worker raising the ticket. Defaults to the caller.
	UserID int64 `json:"user_id,omitempty"`
	// MentorID is the counterpart who answers the ticket.
	MentorID int64 `json:"mentor_id"`
}

// HandleCreateTicket opens a ticket and returns its chat token.
func HandleCreateTicket(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CreateTicketInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID == 0 {
			input.UserID = identity.ID
		}

		if input.UserID != identity.ID && identity.Role != jwt.RoleAdmin {
			logx.Warn("Ticket creation rejected: caller is not the ticket owner.",
				"caller_id", identity.ID,
				"user_id", input.UserID,
			)
			resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			return
		}

		token, err := deps.Chat.CreateTicket(r.Context(), input.UserID, input.MentorID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]string{
			"chat_token": token,
		})
	}
}

type CloseTicketInput struct {
	ID int64 `json:"id"`
}

// HandleCloseTicket closes a ticket the caller participates in.
func HandleCloseTicket(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		var input CloseTicketInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ID <= 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		ticket, err := deps.Chat.CloseTicket(r.Context(), identity.ID, input.ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, ticket)
	}
}

// HandleTicketChat returns the stored messages of ?ticket=<id>.
func HandleTicketChat(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		ticketID, customErr := req.QueryInt64(r, "ticket")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		history, err := deps.Chat.History(r.Context(), identity.ID, ticketID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, history)
	}
}

// HandleWorkerTickets lists the caller's open tickets.
func HandleWorkerTickets(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		tickets, err := deps.Chat.OpenTicketsForUser(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, tickets)
	}
}

// HandleMentorTickets lists the open tickets assigned to the calling mentor.
func HandleMentorTickets(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		if identity.Role != jwt.RoleMentor {
			resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			return
		}

		tickets, err := deps.Chat.OpenTicketsForMentor(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, tickets)
	}
}
