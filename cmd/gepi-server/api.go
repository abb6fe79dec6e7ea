package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"gepi-backend/lib/scrapers/gepi/core"
	"gepi-backend/lib/scrapers/gepi/view"
	"gepi-backend/services/gepi"

	"github.com/google/uuid"
)

// every response carries a status, payload fields only appear on "ok".
// the list fields are pointers so an ok response with nothing in it
// still serializes as an empty array rather than disappearing.
type apiResponse struct {
	Status  core.Status         `json:"status"`
	Token   string              `json:"token,omitempty"`
	Postit  *view.Postit        `json:"postit,omitempty"`
	Days    *[]view.NotebookDay `json:"days,omitempty"`
	Mails   *[]view.Mail        `json:"mails,omitempty"`
	Content string              `json:"content,omitempty"`
}

func daysPayload(days []view.NotebookDay) *[]view.NotebookDay {
	if days == nil {
		days = []view.NotebookDay{}
	}
	return &days
}

func mailsPayload(mails []view.Mail) *[]view.Mail {
	if mails == nil {
		mails = []view.Mail{}
	}
	return &mails
}

func writeResponse(w http.ResponseWriter, res apiResponse) {
	w.Header().Set("content-type", "application/json")
	err := json.NewEncoder(w).Encode(res)
	if err != nil {
		slog.Warn("failed to encode api response", "err", err)
	}
}

// handle wraps one operation with request-id logging and the error
// mapping shared by every endpoint. Callers only ever see a `{status,
// ...}` body: an unparseable form or portal page and a dead portal all
// collapse to "invalid", the details stay in the logs.
func handle(name string, op func(r *http.Request) (apiResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := uuid.NewString()
		slog.Debug("api request", "op", name, "request_id", requestId)

		err := r.ParseForm()
		if err != nil {
			slog.Warn(
				"rejected unparseable request form",
				"op", name,
				"request_id", requestId,
				"err", err,
			)
			writeResponse(w, apiResponse{Status: core.StatusInvalid})
			return
		}

		res, err := op(r)
		if errors.Is(err, view.ErrMalformedPage) {
			slog.Error(
				"portal served an unparseable page",
				"op", name,
				"request_id", requestId,
				"err", err,
			)
			writeResponse(w, apiResponse{Status: core.StatusInvalid})
			return
		}
		if err != nil {
			slog.Error(
				"portal request failed",
				"op", name,
				"request_id", requestId,
				"err", err,
			)
			writeResponse(w, apiResponse{Status: core.StatusInvalid})
			return
		}
		writeResponse(w, res)
	}
}

func RegisterApi(mux *http.ServeMux, svc *gepi.Service) {
	mux.HandleFunc("/api/login", handle("login", func(r *http.Request) (apiResponse, error) {
		status, token, err := svc.Login(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("password"),
		)
		return apiResponse{Status: status, Token: token}, err
	}))

	mux.HandleFunc("/api/home", handle("home", func(r *http.Request) (apiResponse, error) {
		postit, status, err := svc.Home(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
		)
		res := apiResponse{Status: status}
		if status == core.StatusOk {
			res.Postit = &postit
		}
		return res, err
	}))

	mux.HandleFunc("/api/remove_postit", handle("remove_postit", func(r *http.Request) (apiResponse, error) {
		status, err := svc.RemovePostit(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
		)
		return apiResponse{Status: status}, err
	}))

	mux.HandleFunc("/api/notebook", handle("notebook", func(r *http.Request) (apiResponse, error) {
		days, status, err := svc.Notebook(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
		)
		res := apiResponse{Status: status}
		if status == core.StatusOk {
			res.Days = daysPayload(days)
		}
		return res, err
	}))

	mux.HandleFunc("/api/mailbox", handle("mailbox", func(r *http.Request) (apiResponse, error) {
		mails, status, err := svc.Mailbox(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
			view.Mailbox(r.Form.Get("mailbox")),
		)
		res := apiResponse{Status: status}
		if status == core.StatusOk {
			res.Mails = mailsPayload(mails)
		}
		return res, err
	}))

	mux.HandleFunc("/api/read_mail", handle("read_mail", func(r *http.Request) (apiResponse, error) {
		mailId, err := strconv.Atoi(r.Form.Get("id"))
		if err != nil {
			return apiResponse{Status: core.StatusInvalid}, nil
		}
		content, status, err := svc.ReadMail(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
			mailId,
		)
		return apiResponse{Status: status, Content: content}, err
	}))

	mux.HandleFunc("/api/transfer_mail", handle("transfer_mail", func(r *http.Request) (apiResponse, error) {
		transferId, err := strconv.Atoi(r.Form.Get("id"))
		if err != nil {
			return apiResponse{Status: core.StatusInvalid}, nil
		}
		status, err := svc.TransferMail(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
			transferId,
			view.Mailbox(r.Form.Get("from")),
			view.Mailbox(r.Form.Get("to")),
		)
		return apiResponse{Status: status}, err
	}))

	mux.HandleFunc("/api/logout", handle("logout", func(r *http.Request) (apiResponse, error) {
		status, err := svc.Logout(
			r.Context(),
			r.Form.Get("user"),
			r.Form.Get("token"),
		)
		return apiResponse{Status: status}, err
	}))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, apiResponse{Status: core.StatusInvalid})
	})
}
