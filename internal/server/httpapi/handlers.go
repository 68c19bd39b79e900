package httpapi

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/services"
	"github.com/qfolders/qfolders/internal/timex"
)

const (
	confirmedPath    = "/auth/confirmed"
	defaultRangeDays = 365
	formMemory       = 32 << 20
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type folderRequest struct {
	Name string `json:"name" form:"name"`
}

type questionResponse struct {
	Question *questionView `json:"question"`
	Folder   *folderView   `json:"folder,omitempty"`
}

type contributionsResponse struct {
	From   string                   `json:"from"`
	To     string                   `json:"to"`
	Streak int                      `json:"streak"`
	Days   []models.ContributionDay `json:"days"`
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			respond(c, http.StatusServiceUnavailable, 50301, "unavailable", nil)
			return
		}
	}
	success(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return
	}
	if err := h.credentials.Register(c.Request.Context(), req.Email, req.Password, h.redirectURL()); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, gin.H{"message": "check your email to confirm the account"})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return
	}
	s, err := h.credentials.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	stateOf(c).replace(s)
	h.ok(c, http.StatusOK, gin.H{"user_id": s.UserID, "email": s.Email})
}

func (h *Handler) Logout(c *gin.Context) {
	h.credentials.SignOut(c.Request.Context(), sessionOf(c))
	h.ok(c, http.StatusOK, nil)
}

func (h *Handler) ResendConfirmation(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return
	}
	if err := h.credentials.ResendConfirmation(c.Request.Context(), req.Email, h.redirectURL()); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, gin.H{"message": "confirmation email sent"})
}

// Confirmed is where the confirmation mail lands.
func (h *Handler) Confirmed(c *gin.Context) {
	h.ok(c, http.StatusOK, gin.H{"message": "email confirmed, you can log in now"})
}

func (h *Handler) ListFolders(c *gin.Context) {
	list, err := h.records.ListFolders(c.Request.Context(), sessionOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, h.render.folders(list))
}

func (h *Handler) CreateFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", common.ErrorValidation))
		return
	}
	folder, err := h.records.CreateFolder(c.Request.Context(), sessionOf(c), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, h.render.folder(folder))
}

func (h *Handler) GetFolder(c *gin.Context) {
	folder, err := h.records.GetFolder(c.Request.Context(), sessionOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, h.render.folder(folder))
}

func (h *Handler) DeleteFolder(c *gin.Context) {
	if err := h.records.DeleteFolder(c.Request.Context(), sessionOf(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, nil)
}

func (h *Handler) CreateQuestion(c *gin.Context) {
	in, closeFile, err := h.questionInput(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFile()

	q, err := h.records.CreateQuestion(c.Request.Context(), sessionOf(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, h.render.question(q))
}

func (h *Handler) GetQuestion(c *gin.Context) {
	q, folder, err := h.records.GetQuestion(c.Request.Context(), sessionOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, questionResponse{Question: h.render.question(q), Folder: h.render.folder(folder)})
}

func (h *Handler) UpdateQuestion(c *gin.Context) {
	in, closeFile, err := h.questionInput(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer closeFile()

	q, err := h.records.UpdateQuestion(c.Request.Context(), sessionOf(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, h.render.question(q))
}

func (h *Handler) DeleteQuestion(c *gin.Context) {
	if err := h.records.DeleteQuestion(c.Request.Context(), sessionOf(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, nil)
}

func (h *Handler) DownloadAttachment(c *gin.Context) {
	att, d, err := h.records.OpenAttachment(c.Request.Context(), sessionOf(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.commitSession(c)

	if d.URL != "" {
		c.Redirect(http.StatusFound, d.URL)
		return
	}
	defer d.Object.Body.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.DisplayName})
	contentType := d.Object.ContentType
	if contentType == "" {
		contentType = att.ContentType
	}
	c.DataFromReader(http.StatusOK, d.Object.Size, contentType, d.Object.Body, map[string]string{
		"Content-Disposition": disposition,
	})
}

// Contributions reports activity between ?from and ?to, by default the last
// year up to today.
func (h *Handler) Contributions(c *gin.Context) {
	to := timex.Day(h.now())
	if v := c.Query("to"); v != "" {
		d, err := timex.ParseDay(v)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: to must be YYYY-MM-DD", common.ErrorValidation))
			return
		}
		to = d
	}
	from := to.AddDate(0, 0, -(defaultRangeDays - 1))
	if v := c.Query("from"); v != "" {
		d, err := timex.ParseDay(v)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: from must be YYYY-MM-DD", common.ErrorValidation))
			return
		}
		from = d
	}

	days, streak, err := h.records.Contributions(c.Request.Context(), sessionOf(c), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, contributionsResponse{
		From:   from.Format(timex.DateLayout),
		To:     to.Format(timex.DateLayout),
		Streak: streak,
		Days:   days,
	})
}

// questionInput reads the multipart question form. The returned func closes
// the uploaded file, if any.
func (h *Handler) questionInput(c *gin.Context) (services.QuestionInput, func(), error) {
	noop := func() {}
	if err := c.Request.ParseMultipartForm(formMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return services.QuestionInput{}, noop, common.ErrTooLarge
		}
		return services.QuestionInput{}, noop, fmt.Errorf("%w: malformed form", common.ErrorValidation)
	}

	in := services.QuestionInput{
		Title:          c.PostForm("title"),
		Description:    c.PostForm("description"),
		Notes:          c.PostForm("notes"),
		Links:          c.PostForm("links"),
		Code:           c.PostForm("code"),
		TerminalOutput: c.PostForm("terminal_output"),
	}
	if v := c.PostForm("remove_attachment"); v != "" {
		remove, err := strconv.ParseBool(v)
		if err != nil {
			return in, noop, fmt.Errorf("%w: remove_attachment must be a boolean", common.ErrorValidation)
		}
		in.RemoveAttachment = remove
	}

	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, noop, nil
	case err != nil:
		return in, noop, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	if fh.Filename == "" {
		return in, noop, nil
	}
	f, err := fh.Open()
	if err != nil {
		return in, noop, fmt.Errorf("open upload: %w", err)
	}
	in.File = &services.FileUpload{Name: fh.Filename, Content: f}
	return in, func() { closeQuietly(f) }, nil
}

func closeQuietly(f multipart.File) {
	_ = f.Close()
}

func (h *Handler) redirectURL() string {
	return strings.TrimRight(h.siteURL, "/") + confirmedPath
}
