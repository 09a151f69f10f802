package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"actcollective.org/momentum/internal/http/dto"
	"actcollective.org/momentum/internal/store"
)

const (
	defaultSnapshotLimit = 30
	maxSnapshotLimit     = 365
)

type SnapshotHandler struct {
	snapshots store.SnapshotStore
}

func NewSnapshotHandler(snapshots store.SnapshotStore) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// List returns recent snapshots for a sprint, newest first. An empty
// sprint_label selects the all-open-work series.
func (h *SnapshotHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	sprintLabel := c.Query("sprint_label")

	limit := int64(defaultSnapshotLimit)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}

	snapshots, err := h.snapshots.List(ctx, sprintLabel, int32(limit))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list snapshots", "error", err, "sprint_label", sprintLabel)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list snapshots"})
		return
	}

	out := make([]dto.Snapshot, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, dto.SnapshotFromModel(s))
	}

	c.JSON(http.StatusOK, dto.ListSnapshotsResponse{Snapshots: out})
}
