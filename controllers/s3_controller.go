package controllers

import (
	"net/http"

	"anniversary_server/logger"
	"anniversary_server/services"
	"anniversary_server/utils"
)

// MediaController issues presigned URLs for message images and audio.
type MediaController struct {
	Media *services.MediaService
}

func NewMediaController(media *services.MediaService) *MediaController {
	return &MediaController{Media: media}
}

// GeneratePresignedURL generates a presigned URL for S3 uploads
func (c *MediaController) GeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RelationshipID string `json:"relationshipId"`
		FileName       string `json:"fileName"`
		FileType       string `json:"fileType"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.WriteError(w, err)
		return
	}

	url, key, err := c.Media.GenerateUploadURL(r.Context(), payload.RelationshipID, payload.FileName, payload.FileType)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	logger.WithRelationship(payload.RelationshipID).Debug().Str("key", key).Msg("upload URL issued")
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"url": url, "fileName": key})
}

// GetPresignedReadURL generates a presigned URL for reading S3 objects
func (c *MediaController) GetPresignedReadURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RelationshipID string `json:"relationshipId"`
		Key            string `json:"key"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.WriteError(w, err)
		return
	}

	url, err := c.Media.GenerateReadURL(r.Context(), payload.RelationshipID, payload.Key)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"url": url})
}
