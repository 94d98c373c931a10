package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"civicportal/middlewares"
	"civicportal/models"
	"civicportal/response"
	"civicportal/services"
	"civicportal/storage"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the image limit for the text fields and part headers.
const multipartOverhead = 1 << 20

type IssueController struct {
	issues        *services.IssueService
	maxImageBytes int64
}

func NewIssueController(issues *services.IssueService, maxImageBytes int64) *IssueController {
	return &IssueController{issues: issues, maxImageBytes: maxImageBytes}
}

// CreateIssue handles the creation of a new issue from a multipart form.
// Any status sent by the client is ignored.
func (ic *IssueController) CreateIssue(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)

	limit := ic.maxImageBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		response.Error(c, models.ErrFileTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		response.Error(c, formError(err))
		return
	}

	input := services.CreateIssueInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Location:    c.PostForm("location"),
	}

	if form := c.Request.MultipartForm; form != nil && len(form.File["image"]) > 0 {
		fh := form.File["image"][0]
		f, err := fh.Open()
		if err != nil {
			response.Error(c, fmt.Errorf("open uploaded image: %w", err))
			return
		}
		defer f.Close()

		input.Image = &storage.Upload{
			Reader:   f,
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Size:     fh.Size,
		}
	}

	issue, err := ic.issues.CreateIssue(c.Request.Context(), actor, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Issue reported successfully", "issue": issue})
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return models.ErrFileTooLarge
	}
	return models.NewValidationError("body", "must be a valid multipart form")
}

// GetAllIssues lists every issue, newest first, optionally filtered by ?status=.
func (ic *IssueController) GetAllIssues(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	issues, err := ic.issues.ListIssues(c.Request.Context(), actor, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

// GetMyIssues lists the caller's own issues, newest first.
func (ic *IssueController) GetMyIssues(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	issues, err := ic.issues.ListMyIssues(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, issues)
}

func (ic *IssueController) GetIssue(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	issue, err := ic.issues.GetIssue(c.Request.Context(), actor, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		response.ErrorWithMessage(c, err, "Issue not found")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// UpdateIssueStatus is admin only.
func (ic *IssueController) UpdateIssueStatus(c *gin.Context) {
	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	actor, _ := middlewares.CurrentUser(c)
	issue, err := ic.issues.UpdateStatus(c.Request.Context(), actor, c.Param("id"), input.Status)
	if errors.Is(err, models.ErrNotFound) {
		response.ErrorWithMessage(c, err, "Issue not found")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Issue status updated", "issue": issue})
}

func (ic *IssueController) DeleteIssue(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	err := ic.issues.DeleteIssue(c.Request.Context(), actor, c.Param("id"))
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.ErrorWithMessage(c, err, "Issue not found")
		return
	case errors.Is(err, models.ErrForbidden):
		response.ErrorWithMessage(c, err, "Not authorized to delete this issue")
		return
	case err != nil:
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Issue deleted successfully"})
}

func (ic *IssueController) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, models.Categories)
}
