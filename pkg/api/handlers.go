package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/jobhub/pkg/gdrive"
	"github.com/codeready-toolchain/jobhub/pkg/jobs"
)

type idResponse struct {
	ID string `json:"id"` // job or chat id, decimal or uuid
}

type statusResponse struct {
	Status jobs.Status `json:"status"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

// chatID extracts the chat_id query parameter, answering 400 when absent.
func chatID(c *gin.Context) (string, bool) {
	id := c.Query("chat_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errChatIDMissing)
		return "", false
	}
	return id, true
}

// requireQuery extracts a mandatory query parameter, answering 400 when
// absent.
func requireQuery(c *gin.Context, name string) (string, bool) {
	value := c.Query(name)
	if value == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errQueryInvalid)
		return "", false
	}
	return value, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleRequestChatID mints the chat id that scopes all later job
// operations for this client.
func (s *Server) handleRequestChatID(c *gin.Context) {
	c.JSON(http.StatusOK, idResponse{ID: s.registry.NewChatID()})
}

// handleRun schedules an arbitrary child-process job. The command comes
// from the command query parameter, arguments from repeated args
// parameters.
func (s *Server) handleRun(c *gin.Context) {
	chat, ok := chatID(c)
	if !ok {
		return
	}
	command, ok := requireQuery(c, "command")
	if !ok {
		return
	}
	id := s.registry.SubmitProcessJob(chat, command, c.QueryArray("args"))
	c.JSON(http.StatusCreated, idResponse{ID: id})
}

// handleDownloadZipFile converts a Google Drive share link to a direct
// download URL and schedules a download-and-unzip job into the named
// project.
func (s *Server) handleDownloadZipFile(c *gin.Context) {
	chat, ok := chatID(c)
	if !ok {
		return
	}
	projectName, ok := requireQuery(c, "project_name")
	if !ok {
		return
	}
	shareLink, ok := requireQuery(c, "google_drive_share_link")
	if !ok {
		return
	}

	downloadURL, err := gdrive.ConvertShareLink(shareLink)
	if err != nil {
		respondLinkError(c, err)
		return
	}

	id, err := s.registry.SubmitDownloadJob(chat, downloadURL, projectName)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, idResponse{ID: id})
}

// handleConverter schedules the GS-log-to-locust converter over an
// existing project directory.
func (s *Server) handleConverter(c *gin.Context) {
	chat, ok := chatID(c)
	if !ok {
		return
	}
	projectName, ok := requireQuery(c, "project_name")
	if !ok {
		return
	}

	id, err := s.registry.SubmitConverterJob(chat, projectName)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, idResponse{ID: id})
}

// handleCancel sends the advisory cancel signal. The response does not
// wait for the job to die; poll the status endpoint to observe the
// outcome.
func (s *Server) handleCancel(c *gin.Context) {
	chat, ok := chatID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !s.registry.CancelJob(id, chat) {
		c.JSON(http.StatusNotFound, errNotFound)
		return
	}
	c.JSON(http.StatusOK, idResponse{ID: id})
}

func (s *Server) handleStatus(c *gin.Context) {
	chat, ok := chatID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	status, ok := s.registry.JobStatus(id, chat)
	if !ok {
		c.JSON(http.StatusNotFound, errNotFound)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: status})
}

func (s *Server) handleListLogFiles(c *gin.Context) {
	if _, ok := chatID(c); !ok {
		return
	}
	projectName, ok := requireQuery(c, "project_name")
	if !ok {
		return
	}

	files, err := s.registry.ListProjectFiles(projectName)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, filesResponse{Files: files})
}

func (s *Server) handleGetLogFileText(c *gin.Context) {
	if _, ok := chatID(c); !ok {
		return
	}
	projectName, ok := requireQuery(c, "project_name")
	if !ok {
		return
	}
	fileName, ok := requireQuery(c, "file_name")
	if !ok {
		return
	}

	text, err := s.registry.ReadProjectFile(projectName, fileName)
	if err != nil {
		respondRegistryError(c, err)
		return
	}
	c.String(http.StatusOK, text)
}
