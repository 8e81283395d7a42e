package server

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"time"

	"agora/internal/database"
	"agora/internal/feed"
	"agora/internal/rss"

	"github.com/google/uuid"
)

const (
	rssItemLimit      = 50
	anonymousAuthor   = "Anonyme"
	healthPingTimeout = 2 * time.Second
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Printf("Health check failed: %v", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.csrf.Token(w, r)
	if err != nil {
		s.logger.Printf("Error generating CSRF token: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Impossible de générer le jeton CSRF.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// Posts

type createPostRequest struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	SourceURL string    `json:"sourceUrl"`
	Tags      feed.Tags `json:"tags"`
}

type commentRequest struct {
	Section  string `json:"section"`
	Content  string `json:"content"`
	ParentID string `json:"parentId"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	var viewer string
	if user, ok := s.currentUser(r); ok {
		viewer = user.ID
	}
	posts, err := s.db.ListPosts(r.Context(), viewer)
	if err != nil {
		s.logger.Printf("Error listing posts: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Impossible de charger les publications.")
		return
	}
	respondWithJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	var viewer string
	if user, ok := s.currentUser(r); ok {
		viewer = user.ID
	}
	post, err := s.db.GetPost(r.Context(), r.PathValue("id"), viewer)
	if err != nil {
		s.respondPostError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, post)
}

// handleCreatePost publishes a post by hand from the admin console.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	title := strings.TrimSpace(req.Title)
	summary := strings.TrimSpace(req.Summary)
	sourceURL := strings.TrimSpace(req.SourceURL)
	if title == "" || summary == "" || sourceURL == "" {
		respondWithError(w, http.StatusBadRequest, "Titre, résumé et lien source sont obligatoires.")
		return
	}
	if !isHTTPURL(sourceURL) {
		respondWithError(w, http.StatusBadRequest, "Lien source invalide.")
		return
	}

	tags := req.Tags
	if tags == nil {
		tags = feed.Tags{}
	}
	now := time.Now().UTC()
	post, err := s.db.CreatePost(r.Context(), &database.Post{
		ID:        uuid.NewString(),
		Title:     title,
		Summary:   summary,
		SourceURL: sourceURL,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			respondWithError(w, http.StatusConflict, "Une publication existe déjà pour ce lien.")
			return
		}
		s.logger.Printf("Error creating post: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Erreur inconnue lors de la création du post.")
		return
	}
	respondWithJSON(w, http.StatusCreated, post)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	user, _ := getUser(r.Context())
	postID := r.PathValue("id")

	if _, _, err := s.db.ToggleLike(r.Context(), postID, user.ID); err != nil {
		s.respondPostError(w, err)
		return
	}
	post, err := s.db.GetPost(r.Context(), postID, user.ID)
	if err != nil {
		s.respondPostError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, post)
}

// handleAddComment adds a comment, or a reply when parentId is set, and
// returns the updated post.
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	user, _ := getUser(r.Context())
	postID := r.PathValue("id")

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondWithError(w, http.StatusBadRequest, "Le commentaire est obligatoire.")
		return
	}

	author := strings.TrimSpace(user.Name)
	if author == "" {
		author = anonymousAuthor
	}

	if parentID := strings.TrimSpace(req.ParentID); parentID != "" {
		_, err := s.db.AddReply(r.Context(), postID, parentID, database.Reply{
			AuthorID:   user.ID,
			AuthorName: author,
			Content:    content,
		})
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Commentaire introuvable.")
				return
			}
			s.logger.Printf("Error adding reply to post %s: %v", postID, err)
			respondWithError(w, http.StatusInternalServerError, "Impossible d'ajouter la réponse.")
			return
		}
	} else {
		_, err := s.db.AddComment(r.Context(), postID, database.Comment{
			Section:    strings.ToLower(strings.TrimSpace(req.Section)),
			AuthorID:   user.ID,
			AuthorName: author,
			Content:    content,
		})
		if err != nil {
			s.respondPostError(w, err)
			return
		}
	}

	post, err := s.db.GetPost(r.Context(), postID, user.ID)
	if err != nil {
		s.respondPostError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, post)
}

func (s *Server) respondPostError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Publication introuvable.")
		return
	}
	s.logger.Printf("Error handling post: %v", err)
	respondWithError(w, http.StatusInternalServerError, "Erreur interne du serveur.")
}

// Feeds

type feedResponse struct {
	Feed         *feed.Feed         `json:"feed"`
	ImportResult *feed.ImportResult `json:"importResult,omitempty"`
}

type validateFeedRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feedService.ListFeeds(r.Context())
	if err != nil {
		s.logger.Printf("Error listing feeds: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Impossible de charger les flux.")
		return
	}
	respondWithJSON(w, http.StatusOK, feeds)
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var in feed.FeedInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	created, result, err := s.feedService.CreateFeed(r.Context(), in)
	if err != nil {
		s.respondFeedError(w, err, "Impossible de créer le flux.")
		return
	}
	respondWithJSON(w, http.StatusCreated, feedResponse{Feed: created, ImportResult: result})
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	var patch feed.FeedPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	updated, result, err := s.feedService.UpdateFeed(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.respondFeedError(w, err, "Impossible de mettre à jour le flux.")
		return
	}
	respondWithJSON(w, http.StatusOK, feedResponse{Feed: updated, ImportResult: result})
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := s.feedService.DeleteFeed(r.Context(), r.PathValue("id")); err != nil {
		s.respondFeedError(w, err, "Impossible de supprimer le flux.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleImportFeed(w http.ResponseWriter, r *http.Request) {
	f, result, err := s.feedService.ImportFeed(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondFeedError(w, err, "Impossible d'importer le flux.")
		return
	}
	respondWithJSON(w, http.StatusOK, feedResponse{Feed: f, ImportResult: result})
}

func (s *Server) handleValidateFeed(w http.ResponseWriter, r *http.Request) {
	var req validateFeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondWithError(w, http.StatusBadRequest, "URL du flux invalide.")
		return
	}

	preview, err := s.feedService.Preview(r.Context(), req.URL)
	if err != nil {
		var fetchErr *feed.FetchError
		switch {
		case errors.Is(err, feed.ErrFeedTooLarge):
			respondWithError(w, http.StatusBadGateway, "Le flux dépasse la taille autorisée.")
		case errors.As(err, &fetchErr):
			respondWithError(w, http.StatusBadGateway, fetchErr.Error())
		default:
			s.respondFeedError(w, err, "Impossible de vérifier le flux.")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, preview)
}

func (s *Server) respondFeedError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, feed.ErrMissingFields):
		respondWithError(w, http.StatusBadRequest, "Label et URL sont obligatoires.")
	case errors.Is(err, feed.ErrInvalidURL):
		respondWithError(w, http.StatusBadRequest, "URL du flux invalide.")
	case errors.Is(err, feed.ErrEmptyLabel):
		respondWithError(w, http.StatusBadRequest, "Le nom du flux ne peut pas être vide.")
	case errors.Is(err, feed.ErrNotAFeed):
		respondWithError(w, http.StatusUnprocessableEntity, "Ce lien ne pointe pas vers un flux RSS valide.")
	case errors.Is(err, database.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Flux introuvable.")
	default:
		s.logger.Printf("Feed operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

// RSS

// handleRSS republishes the latest posts as an RSS 2.0 channel.
func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	posts, err := s.db.RecentPosts(r.Context(), rssItemLimit)
	if err != nil {
		s.logger.Printf("Error loading posts for RSS: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	siteURL := s.siteURL(r)
	channel := rss.Channel{
		Title:       s.config.SiteTitle,
		Link:        siteURL + "/",
		Description: "Dernières publications de " + s.config.SiteTitle,
		Language:    "fr",
		SelfLink: &rss.AtomLink{
			Href: siteURL + "/rss.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Items: make([]rss.ChannelItem, 0, len(posts)),
	}

	var lastBuild time.Time
	for _, p := range posts {
		if p.UpdatedAt.After(lastBuild) {
			lastBuild = p.UpdatedAt
		}
		channel.Items = append(channel.Items, rss.ChannelItem{
			Title:       p.Title,
			Link:        p.SourceURL,
			Description: p.Summary,
			Categories:  p.Tags,
			PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
			GUID:        rss.GUID{Value: siteURL + "/posts/" + p.ID},
		})
	}
	if !lastBuild.IsZero() {
		channel.LastBuildDate = lastBuild.UTC().Format(time.RFC1123Z)
	}

	out, err := xml.MarshalIndent(rss.Document{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: channel,
	}, "", "  ")
	if err != nil {
		s.logger.Printf("Error encoding RSS: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	w.Write(out)
}

// siteURL is the configured public URL, or one derived from the request.
func (s *Server) siteURL(r *http.Request) string {
	if s.config.SiteURL != "" {
		return strings.TrimRight(s.config.SiteURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || s.config.UseHTTPS {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
