package controllers

import (
	"net/http"
	"strconv"

	"anniversary_server/models"
	"anniversary_server/services"
	"anniversary_server/utils"

	"github.com/gorilla/mux"
)

// MessageController handles authored messages and the relationship feed.
type MessageController struct {
	Messages *services.MessageStore
	Feed     *services.FeedService
}

func NewMessageController(messages *services.MessageStore, feed *services.FeedService) *MessageController {
	return &MessageController{Messages: messages, Feed: feed}
}

// SaveMessageHandler creates a message, or edits it when an id is given.
func (c *MessageController) SaveMessageHandler(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := utils.DecodeJSON(r, &msg); err != nil {
		utils.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if msg.ID != "" {
		status = http.StatusOK
	}

	saved, err := c.Messages.Save(r.Context(), msg)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, status, saved)
}

// ListMessagesHandler returns the ordered messages, or with ?feed=true the
// feed entries joined with delivery status. deliveredOnly=true limits the
// feed to delivered months.
func (c *MessageController) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	relationshipID := mux.Vars(r)["id"]
	query := r.URL.Query()

	if feed, _ := strconv.ParseBool(query.Get("feed")); feed {
		deliveredOnly, _ := strconv.ParseBool(query.Get("deliveredOnly"))
		entries, err := c.Feed.Snapshot(r.Context(), relationshipID, services.FeedOptions{DeliveredOnly: deliveredOnly})
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		utils.WriteJSONResponse(w, http.StatusOK, entries)
		return
	}

	msgs, err := c.Messages.ListForRelationship(r.Context(), relationshipID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, msgs)
}
