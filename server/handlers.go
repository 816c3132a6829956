package server

import (
	"net/http"

	"sharexp/feeds"
	"sharexp/storage/models"

	"github.com/gin-gonic/gin"
)

type createPostRequest struct {
	Text  string        `json:"text"`
	Media *models.Media `json:"media"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type actionRequest struct {
	Action      string `json:"action"`
	CommentText string `json:"commentText"`
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"presence": s.registry.Stats(),
	})
}

func (s *Server) postFollow(c *gin.Context) {
	result, err := s.graph.ToggleFollow(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"isFollowing":   result.IsFollowing,
		"followerCount": result.FollowerCount,
	})
}

func (s *Server) getUserProfile(c *gin.Context) {
	view, err := s.graph.Profile(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) postPost(c *gin.Context) {
	var request createPostRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		sendError(c, http.StatusBadRequest, "invalid post body")
		return
	}
	post, err := s.ledger.Publish(c.Request.Context(), callerID(c), request.Text, request.Media)
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (s *Server) deletePost(c *gin.Context) {
	if err := s.ledger.Delete(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Post deleted"})
}

func (s *Server) getUserPosts(c *gin.Context) {
	posts, err := s.feeds.UserPosts(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (s *Server) postLike(c *gin.Context) {
	result, err := s.ledger.Like(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Post liked", "likes": result.Likes, "count": result.Count})
}

func (s *Server) deleteLike(c *gin.Context) {
	result, err := s.ledger.Unlike(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Post unliked", "likes": result.Likes, "count": result.Count})
}

func (s *Server) getLikeStatus(c *gin.Context) {
	status, err := s.ledger.LikeStatus(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) postComment(c *gin.Context) {
	var request commentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		sendError(c, http.StatusBadRequest, "invalid comment body")
		return
	}
	s.comment(c, request.Text)
}

func (s *Server) comment(c *gin.Context, text string) {
	result, err := s.ledger.Comment(c.Request.Context(), c.Param("id"), callerID(c), text)
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"msg":      "Comment added",
		"comment":  result.Comment,
		"comments": result.Comments,
		"count":    result.Count,
	})
}

// postAction accepts like, unlike and comment on one endpoint.
func (s *Server) postAction(c *gin.Context) {
	var request actionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		sendError(c, http.StatusBadRequest, "invalid action body")
		return
	}
	switch request.Action {
	case "like":
		s.postLike(c)
	case "unlike":
		s.deleteLike(c)
	case "comment":
		s.comment(c, request.CommentText)
	default:
		sendError(c, http.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) getAllNotifications(c *gin.Context) {
	views, err := s.dispatcher.ListAll(c.Request.Context(), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getUnreadNotifications(c *gin.Context) {
	views, err := s.dispatcher.ListUnread(c.Request.Context(), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getUnreadCount(c *gin.Context) {
	count, err := s.dispatcher.UnreadCount(c.Request.Context(), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) patchMarkRead(c *gin.Context) {
	result, err := s.dispatcher.MarkAllRead(c.Request.Context(), callerID(c))
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"modifiedCount":       result.ModifiedCount,
		"previousUnreadCount": result.PreviousUnreadCount,
	})
}

func (s *Server) getFollowingFeed(c *gin.Context) {
	limit, ok := getQueryInt(c, "limit", feeds.DefaultLimit)
	if !ok {
		sendError(c, http.StatusBadRequest, "invalid limit param")
		return
	}
	response, err := s.feeds.GetTimeline(c.Request.Context(), callerID(c), feeds.QueryParams{
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		sendFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) getWebsocket(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request, callerID(c))
}
