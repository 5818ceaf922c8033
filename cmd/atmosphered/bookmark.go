package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/mistifyio/atmosphere"
)

// RegisterBookmarkRoutes registers the image bookmark routes and handlers.
// Every route is scoped to the authenticated user.
func RegisterBookmarkRoutes(prefix string, router *mux.Router, m *metricsContext) {
	auth := alice.New(tokenAuth)
	bookmarkMiddleware := auth.Append(loadBookmark)

	router.Handle(prefix, auth.Append(m.HandlerWrapper("bookmarks.list")).ThenFunc(ListBookmarks)).Methods("GET", "HEAD")
	router.Handle(prefix, auth.Append(m.HandlerWrapper("bookmarks.create")).ThenFunc(CreateBookmark)).Methods("POST")

	sub := router.PathPrefix(prefix).Subrouter()
	sub.Handle("/{bookmarkID}", bookmarkMiddleware.Append(m.HandlerWrapper("bookmarks.get")).ThenFunc(GetBookmark)).Methods("GET", "HEAD")
	sub.Handle("/{bookmarkID}", bookmarkMiddleware.Append(m.HandlerWrapper("bookmarks.destroy")).ThenFunc(DestroyBookmark)).Methods("DELETE")
}

// loadBookmark is a middleware to load the user's bookmark named by either
// its id or the bookmarked application's id
func loadBookmark(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		ctx := GetContext(r)
		user := GetRequestUser(r)
		bookmark, err := ctx.Bookmark(user.Username, mux.Vars(r)["bookmarkID"])
		if err != nil {
			if err == atmosphere.ErrInvalidUUID {
				hr.JSONMsg(http.StatusBadRequest, "invalid bookmark id")
				return
			}
			hr.JSONError(errorCode(ctx, err), err)
			return
		}
		h.ServeHTTP(w, setRequestValue(r, bookmarkKey, bookmark))
	})
}

// ListBookmarks lists the user's bookmarks, oldest first
func ListBookmarks(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	bookmarks, err := ctx.Bookmarks(GetRequestUser(r).Username)
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, bookmarks)
}

// CreateBookmark bookmarks an application for the user. Any user in the body
// is ignored.
func CreateBookmark(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)

	var body struct {
		Application string `json:"application"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}

	bookmark := ctx.NewBookmark(GetRequestUser(r).Username)
	bookmark.Application = body.Application
	if err := bookmark.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}
	if err := bookmark.Save(); err != nil {
		if err == atmosphere.ErrDuplicateBookmark {
			hr.JSONMsg(http.StatusConflict, err.Error())
			return
		}
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusCreated, bookmark)
}

// GetBookmark gets a particular bookmark
func GetBookmark(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestBookmark(r))
}

// DestroyBookmark removes a bookmark
func DestroyBookmark(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	bookmark := GetRequestBookmark(r)
	if err := bookmark.Destroy(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRequestBookmark retrieves the bookmark from the request context
func GetRequestBookmark(r *http.Request) *atmosphere.ApplicationBookmark {
	return r.Context().Value(bookmarkKey).(*atmosphere.ApplicationBookmark)
}
