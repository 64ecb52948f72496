// README: Media upload handler for handover photos, dispute evidence and documents.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vrent/internal/modules/booking"
	"vrent/internal/modules/media"
)

var uploadPurposes = map[string]bool{
	"handover": true,
	"return":   true,
	"dispute":  true,
	"document": true,
}

type MediaHandler struct {
	media    *media.Service
	bookings *booking.Service
}

func NewMediaHandler(svc *media.Service, bookings *booking.Service) *MediaHandler {
	return &MediaHandler{media: svc, bookings: bookings}
}

// Upload takes a multipart "file" field and returns the stored object; the
// URL is then passed along with handover, return or dispute requests.
func (h *MediaHandler) Upload(c *gin.Context) {
	if h.media == nil {
		writeError(c, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadBytes+1<<20)
	purpose := c.DefaultPostForm("purpose", "document")
	if !uploadPurposes[purpose] {
		writeError(c, http.StatusBadRequest, "invalid purpose")
		return
	}
	b, err := h.bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if a := actor(c); a.Role == booking.RoleRenter && b.RenterID != a.ID {
		writeAppError(c, booking.ErrForbidden)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable file")
		return
	}
	defer f.Close()

	obj, err := h.media.Upload(c.Request.Context(), media.Upload{
		BookingID:   id,
		Purpose:     purpose,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, obj)
}
