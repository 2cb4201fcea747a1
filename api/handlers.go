// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/gleaner/core"
	"github.com/poiesic/gleaner/orchestrator"
	"github.com/poiesic/gleaner/storage"
)

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Gleaner API is running!"})
}

func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: s.now().Unix(),
		Services:  map[string]string{"vector_store": "healthy"},
	}
	if err := s.collections.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("vector store health check failed", "err", err)
		resp.Services["vector_store"] = "unhealthy"
		resp.Status = "degraded"
	}
	if ps, ok := s.jobs.(PoolStats); ok {
		queued, running := ps.Stats()
		resp.Workers = &WorkerStats{Width: ps.Workers(), Queued: queued, Running: running}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) scrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	in := core.Input{Prompt: req.Prompt, SourceHint: core.SourceHint(req.SourceType)}
	s.submit(c, core.KindScrape, in, "Scrape job started")
}

func (s *Server) uploadLocal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.badRequest(c, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	files, err := decodeFiles(body)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	s.submit(c, core.KindLocalUpload, core.Input{Files: files}, "Local file processing started")
}

// decodeFiles accepts {"files": [...]} or a bare array of paths.
func decodeFiles(body []byte) ([]string, error) {
	var files []string
	if err := json.Unmarshal(body, &files); err == nil {
		return files, nil
	}
	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return req.Files, nil
}

func (s *Server) submit(c *gin.Context, kind core.JobKind, in core.Input, message string) {
	id, err := s.jobs.Submit(c.Request.Context(), kind, in)
	if err != nil {
		s.submitError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SubmitResponse{JobID: id, Status: "initiated", Message: message})
}

// chat submits a chat job and waits for it, returning the job id instead
// when the answer takes longer than the chat timeout.
func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var kind core.JobKind
	switch req.ChatType {
	case "", ChatTypeData:
		kind = core.KindChatQuery
	case ChatTypeConfig:
		kind = core.KindConfigCommand
	default:
		s.badRequest(c, fmt.Errorf("%w: %q", ErrInvalidChatType, req.ChatType))
		return
	}

	in := core.Input{Prompt: req.Message, Collection: req.ContextCollection}
	id, err := s.jobs.Submit(c.Request.Context(), kind, in)
	if err != nil {
		s.submitError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.chatTimeout)
	defer cancel()
	job, err := orchestrator.Wait(ctx, s.jobs, id, s.pollInterval, nil)
	switch {
	case err != nil && job != nil:
		c.JSON(http.StatusAccepted, SubmitResponse{
			JobID:   id,
			Status:  string(job.Status),
			Message: "Chat job still running, poll /jobs/" + id,
		})
	case err != nil:
		s.internalError(c, err)
	case job.Status == core.StatusFailed:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: job.Error.Message, Kind: string(job.Error.Kind)})
	default:
		c.JSON(http.StatusOK, ChatResponse{JobID: id, Response: job.Result.Response})
	}
}

func (s *Server) getJob(c *gin.Context) {
	id := c.Param("id")
	job, found, err := s.jobs.Query(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("Job %s not found", id)})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) listJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(c, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	jobs, err := s.jobs.List(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*core.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) listCollections(c *gin.Context) {
	infos, err := s.collections.ListCollections(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	if infos == nil {
		infos = []core.CollectionInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": infos})
}

func (s *Server) collectionStats(c *gin.Context) {
	name := c.Param("name")
	stats, err := s.collections.CollectionStats(c.Request.Context(), name)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidCollection) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("Collection %s not found", name)})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// deleteCollection is idempotent: deleting an absent collection succeeds.
func (s *Server) deleteCollection(c *gin.Context) {
	name := c.Param("name")
	if err := storage.ValidateCollectionName(name); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.collections.DeleteCollection(c.Request.Context(), name); err != nil {
		s.internalError(c, err)
		return
	}
	s.logger.Info("collection deleted", "collection", name)
	c.JSON(http.StatusOK, gin.H{"message": "Collection deleted", "name": name})
}

func (s *Server) submitError(c *gin.Context, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Kind: string(core.KindValidation)})
	case errors.Is(err, orchestrator.ErrClosed):
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.internalError(c, err)
	}
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(core.KindValidation)})
}

func (s *Server) internalError(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: string(core.KindInternal)})
}
