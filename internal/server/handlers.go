package server

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"pinarch/internal/archive"
	"pinarch/internal/model"
)

// maxPageSize caps the limit parameter of list requests.
const maxPageSize = 100

var validSorts = map[string]bool{
	"newest": true,
	"oldest": true,
	"random": true,
}

// mediaURLPattern extracts the file id and extension from a media URL
// submitted by a client, query string tolerated.
var mediaURLPattern = regexp.MustCompile(`/([0-9a-f]{32})\.(\w+)(?:\?|$)`)

// pinJSON is the wire representation of a catalog record.
type pinJSON struct {
	PinID      string `json:"pin_id"`
	SourceURL  string `json:"source_url"`
	ImageURL   string `json:"image_url"`
	FileID     string `json:"file_id"`
	SourceDate *int64 `json:"source_date"`
	Rating     int64  `json:"rating"`
}

func toPinJSON(p model.Pin) pinJSON {
	out := pinJSON{
		PinID:     p.PinID,
		SourceURL: p.SourceURL,
		ImageURL:  fmt.Sprintf("/images/%s.%s", p.FileID, p.FileExtension),
		FileID:    p.FileID,
		Rating:    p.Rating,
	}
	if p.SourceDate.Valid {
		d := p.SourceDate.Int64
		out.SourceDate = &d
	}
	return out
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// listPins handles GET /api/pins.
func (s *Server) listPins(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	sort := c.Query("sort", "newest")

	if offset < 0 {
		return errorJSON(c, fiber.StatusBadRequest, "offset must not be negative")
	}
	if limit < 1 || limit > maxPageSize {
		return errorJSON(c, fiber.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	}
	if !validSorts[sort] {
		return errorJSON(c, fiber.StatusBadRequest, "sort must be one of newest, oldest, random")
	}

	pins, err := s.store.ListPins(offset, limit, sort)
	if err != nil {
		s.logger.Error("listing pins", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "listing pins failed")
	}

	total, err := s.store.CountPins()
	if err != nil {
		s.logger.Error("counting pins", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "listing pins failed")
	}

	out := make([]pinJSON, 0, len(pins))
	for _, p := range pins {
		out = append(out, toPinJSON(p))
	}

	return c.JSON(fiber.Map{
		"pins":     out,
		"total":    total,
		"offset":   offset,
		"limit":    limit,
		"sort":     sort,
		"has_more": int64(offset+limit) < total,
	})
}

type addPinRequest struct {
	PinID       string `json:"pin_id"`
	OriginalURL string `json:"original_url"`
}

// addPin handles POST /api/pins. A record whose pin_id or file_id is
// already cataloged is reported as existing rather than re-added; a new
// record only lands after its media blob is on disk.
func (s *Server) addPin(c *fiber.Ctx) error {
	var req addPinRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.PinID == "" || req.OriginalURL == "" {
		return errorJSON(c, fiber.StatusBadRequest, "pin_id and original_url are required")
	}

	existing, err := s.store.FindPinByPinID(req.PinID)
	if err != nil {
		s.logger.Error("looking up pin", "pin_id", req.PinID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "lookup failed")
	}
	if existing != nil {
		return c.JSON(fiber.Map{"status": "exists", "matched_on": "pin_id", "pin_id": existing.PinID})
	}

	m := mediaURLPattern.FindStringSubmatch(req.OriginalURL)
	if m == nil {
		return errorJSON(c, fiber.StatusBadRequest, "original_url does not reference a full-resolution media file")
	}
	fileID, ext := m[1], strings.ToLower(m[2])

	existing, err = s.store.FindPinByFileID(fileID)
	if err != nil {
		s.logger.Error("looking up media", "file_id", fileID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "lookup failed")
	}
	if existing != nil {
		return c.JSON(fiber.Map{"status": "exists", "matched_on": "file_id", "pin_id": existing.PinID})
	}

	finalExt, err := s.fetcher.Fetch(fileID, ext, req.OriginalURL)
	if err != nil {
		s.logger.Error("fetching media", "file_id", fileID, "error", err)
		return errorJSON(c, fiber.StatusBadGateway, "fetching media failed")
	}

	pin := model.Pin{
		PinID:            req.PinID,
		FileID:           fileID,
		FileExtension:    finalExt,
		SourceURL:        archive.SourceURL(req.PinID),
		OriginalMediaURL: req.OriginalURL,
		SourceDate:       sql.NullInt64{Int64: time.Now().Unix(), Valid: true},
	}
	inserted, err := s.store.InsertPin(pin)
	if err != nil {
		s.logger.Error("inserting pin", "pin_id", req.PinID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "inserting pin failed")
	}
	if !inserted {
		return c.JSON(fiber.Map{"status": "exists", "matched_on": "pin_id", "pin_id": req.PinID})
	}

	s.logger.Info("pin added", "pin_id", req.PinID, "file_id", fileID, "extension", finalExt)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":         "added",
		"pin_id":         req.PinID,
		"file_id":        fileID,
		"file_extension": finalExt,
	})
}

type checkPinsRequest struct {
	Pins []checkPinQuery `json:"pins"`
}

type checkPinQuery struct {
	PinID  string `json:"pin_id"`
	FileID string `json:"file_id"`
}

// checkPins handles POST /api/pins/check: a batch membership test without
// side effects. A queried pin counts as existing when its pin_id is
// cataloged or, failing that, when its file_id already has a record.
func (s *Server) checkPins(c *fiber.Ctx) error {
	var req checkPinsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Pins) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "pins is required")
	}

	existing := make([]string, 0, len(req.Pins))
	for _, q := range req.Pins {
		if q.PinID == "" {
			continue
		}

		found, err := s.store.PinExists(q.PinID)
		if err != nil {
			s.logger.Error("looking up pin", "pin_id", q.PinID, "error", err)
			return errorJSON(c, fiber.StatusInternalServerError, "lookup failed")
		}
		if !found && q.FileID != "" {
			pin, err := s.store.FindPinByFileID(q.FileID)
			if err != nil {
				s.logger.Error("looking up media", "file_id", q.FileID, "error", err)
				return errorJSON(c, fiber.StatusInternalServerError, "lookup failed")
			}
			found = pin != nil
		}
		if found {
			existing = append(existing, q.PinID)
		}
	}

	return c.JSON(fiber.Map{"existing": existing})
}

// deletePin handles DELETE /api/pins/:pin_id. With delete_file=true the
// media blob is removed as well, unless another record still references it.
func (s *Server) deletePin(c *fiber.Ctx) error {
	pinID := c.Params("pin_id")

	pin, err := s.store.FindPinByPinID(pinID)
	if err != nil {
		s.logger.Error("looking up pin", "pin_id", pinID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "lookup failed")
	}
	if pin == nil {
		return errorJSON(c, fiber.StatusNotFound, "pin not found")
	}

	if err := s.store.DeletePinByPinID(pinID); err != nil {
		s.logger.Error("deleting pin", "pin_id", pinID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "deleting pin failed")
	}

	fileDeleted := false
	if c.QueryBool("delete_file", false) {
		remaining, err := s.store.FindPinByFileID(pin.FileID)
		if err != nil {
			s.logger.Error("looking up media", "file_id", pin.FileID, "error", err)
			return errorJSON(c, fiber.StatusInternalServerError, "deleting media failed")
		}
		if remaining == nil {
			path := filepath.Join(s.mediaDir, pin.FileID+"."+pin.FileExtension)
			switch err := os.Remove(path); {
			case err == nil:
				fileDeleted = true
			case !errors.Is(err, fs.ErrNotExist):
				s.logger.Error("deleting media", "file_id", pin.FileID, "error", err)
				return errorJSON(c, fiber.StatusInternalServerError, "deleting media failed")
			}
		}
	}

	s.logger.Info("pin deleted", "pin_id", pinID, "file_deleted", fileDeleted)
	return c.JSON(fiber.Map{"status": "deleted", "pin_id": pinID, "file_deleted": fileDeleted})
}

// mediaFilenamePattern constrains /images lookups to content-addressed
// blob names, which also rules out path traversal.
var mediaFilenamePattern = regexp.MustCompile(`^[0-9a-f]{32}\.\w+$`)

// serveImage handles GET /images/:filename.
func (s *Server) serveImage(c *fiber.Ctx) error {
	filename := c.Params("filename")
	if !mediaFilenamePattern.MatchString(filename) {
		return errorJSON(c, fiber.StatusBadRequest, "invalid media filename")
	}

	path := filepath.Join(s.mediaDir, filename)
	if _, err := os.Stat(path); err != nil {
		return errorJSON(c, fiber.StatusNotFound, "media not found")
	}
	return c.SendFile(path)
}
