package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"leaddesk/api/internal/auth"
	"leaddesk/api/internal/authpw"
	"leaddesk/api/internal/config"
	"leaddesk/api/internal/rbac"
	"leaddesk/api/internal/store"
	"leaddesk/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Actor() rbac.Actor {
	return rbac.Actor{ID: s.UserID, Role: rbac.Normalize(s.Role)}
}

type CreateLeadInput struct {
	SchoolName     string `json:"schoolName"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	PhoneNumber    string `json:"phoneNumber"`
	ProgressStatus string `json:"progressStatus"`
	AssignedTo     string `json:"assignedTo"`
}

// CampaignInput covers both add and update: on update, empty fields are left
// unchanged (same convention as LeadPatch). Deliver requests best-effort SMTP
// delivery of the recorded content to the lead's contact address.
type CampaignInput struct {
	Category string `json:"category"`
	Content  string `json:"content"`
	SentBy   string `json:"sentBy"`
	SentAt   string `json:"sentAt"`
	Deliver  bool   `json:"deliver"`
}

var allowedCampaignCategories = map[string]struct{}{
	"Promotional": {},
	"Follow-up":   {},
	"Newsletter":  {},
}

type dataStore interface {
	InsertLead(context.Context, store.Lead) error
	GetLead(context.Context, string) (store.Lead, error)
	ListLeads(context.Context) ([]store.Lead, error)
	ListLeadsByOwner(context.Context, string) ([]store.Lead, error)
	SaveLeadUpdate(context.Context, store.Lead, int64, []store.HistoryEntry) (bool, error)
	DeleteLead(context.Context, string) (bool, error)
	UpdateHistoryDescription(ctx context.Context, leadID, historyID, description string) (bool, error)
	InsertCampaign(context.Context, store.CampaignEntry) error
	UpdateCampaign(context.Context, store.CampaignEntry) (bool, error)
	DeleteCampaign(ctx context.Context, leadID, campaignID string) (bool, error)
	GetUserByID(context.Context, string) (store.User, error)
	UsernamesByID(context.Context, []string) (map[string]string, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// LeadIndexer receives lead changes for the search index. Implementations
// are expected to be fire-and-forget; indexing failures never fail a write.
type LeadIndexer interface {
	IndexLead(lead store.Lead, ownerUsername string)
	RemoveLead(leadID string)
}

// CampaignMailer delivers a recorded campaign to the lead's contact address.
type CampaignMailer interface {
	IsConfigured() bool
	DeliverCampaign(to, category, content string) error
}

// LeadSearcher answers full-text queries over the lead corpus.
type LeadSearcher interface {
	SearchLeads(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// DraftComposer generates an email draft from a free-form description.
type DraftComposer interface {
	ComposeDraft(ctx context.Context, description, recipient, category string) (subject, body string, err error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *authpw.Service
	indexer  LeadIndexer
	mailer   CampaignMailer
	searcher LeadSearcher
	composer DraftComposer
}

func New(cfg config.Config, dataStore *store.PostgresStore, accounts *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		accounts: accounts,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, accounts *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: accounts,
	}
}

// SetIndexer wires the optional search index.
func (s *Service) SetIndexer(indexer LeadIndexer) {
	s.indexer = indexer
}

// SetMailer wires the optional campaign delivery service.
func (s *Service) SetMailer(mailer CampaignMailer) {
	s.mailer = mailer
}

// SetSearcher wires the optional search query path.
func (s *Service) SetSearcher(searcher LeadSearcher) {
	s.searcher = searcher
}

// SetComposer wires the optional draft generation collaborator.
func (s *Service) SetComposer(composer DraftComposer) {
	s.composer = composer
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Sessions

func (s *Service) AdminRegistered(ctx context.Context) (bool, error) {
	return s.accounts.AdminRegistered(ctx)
}

func (s *Service) RegisterFirstAdmin(ctx context.Context, username, password string) (Session, error) {
	user, err := s.accounts.RegisterFirstAdmin(ctx, username, password)
	if err != nil {
		return Session{}, translateAccountError(err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.accounts.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, translateAccountError(err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	sessionUser, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	// Re-read the account so role changes and deletions take effect on rotation.
	user, err := s.store.GetUserByID(ctx, sessionUser.ID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func translateAccountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrUsernameTaken):
		return conflict("Username already taken")
	case errors.Is(err, authpw.ErrAdminExists):
		return conflict("An admin user already exists")
	case errors.Is(err, authpw.ErrInvalidRole), errors.Is(err, authpw.ErrMissingFields):
		return validationError(err.Error())
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(401, "UNAUTHORIZED", "Invalid credentials", nil)
	default:
		return err
	}
}

// Users

func (s *Service) CreateUser(ctx context.Context, actor rbac.Actor, username, password, role string) (map[string]any, error) {
	if !rbac.CanManageUsers(actor) {
		return nil, unauthorized("Only admins can manage users")
	}
	user, err := s.accounts.CreateUser(ctx, username, password, role)
	if err != nil {
		return nil, translateAccountError(err)
	}
	return renderUser(user), nil
}

func (s *Service) UpdateUser(ctx context.Context, actor rbac.Actor, userID string, input authpw.UpdateUserInput) (map[string]any, error) {
	if !rbac.CanManageUsers(actor) {
		return nil, unauthorized("Only admins can manage users")
	}
	user, err := s.accounts.UpdateUser(ctx, userID, input)
	if err != nil {
		return nil, translateAccountError(err)
	}
	return renderUser(user), nil
}

func (s *Service) DeleteUser(ctx context.Context, actor rbac.Actor, userID string) error {
	if !rbac.CanManageUsers(actor) {
		return unauthorized("Only admins can manage users")
	}
	return s.accounts.DeleteUser(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, actor rbac.Actor) ([]map[string]any, error) {
	if !rbac.CanManageUsers(actor) {
		return nil, unauthorized("Only admins can manage users")
	}
	users, err := s.accounts.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, renderUser(user))
	}
	return items, nil
}

// ListUsersPublic exposes id+username pairs to any authenticated actor, so
// members can resolve owner and sender references without admin rights.
func (s *Service) ListUsersPublic(ctx context.Context) ([]map[string]any, error) {
	users, err := s.accounts.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, map[string]any{
			"id":       user.ID,
			"username": user.Username,
		})
	}
	return items, nil
}

func (s *Service) Me(ctx context.Context, actor rbac.Actor) (map[string]any, error) {
	user, err := s.accounts.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":       user.ID,
		"username": user.Username,
	}, nil
}

// Leads

func (s *Service) CreateLead(ctx context.Context, actor rbac.Actor, input CreateLeadInput) (map[string]any, error) {
	if !rbac.CanCreateLead(actor) {
		return nil, unauthorized("Only admins can create leads")
	}
	if strings.TrimSpace(input.SchoolName) == "" || strings.TrimSpace(input.Email) == "" ||
		strings.TrimSpace(input.Address) == "" || strings.TrimSpace(input.PhoneNumber) == "" {
		return nil, validationError("schoolName, email, address, and phoneNumber are required")
	}
	if input.AssignedTo != "" {
		if _, err := s.store.GetUserByID(ctx, input.AssignedTo); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Assigned user not found")
			}
			return nil, err
		}
	}

	lead := store.Lead{
		ID:             util.NewID("lead"),
		SchoolName:     strings.TrimSpace(input.SchoolName),
		Email:          strings.TrimSpace(input.Email),
		Address:        strings.TrimSpace(input.Address),
		PhoneNumber:    strings.TrimSpace(input.PhoneNumber),
		ProgressStatus: strings.TrimSpace(input.ProgressStatus),
		AssignedTo:     input.AssignedTo,
	}
	if err := s.store.InsertLead(ctx, lead); err != nil {
		return nil, err
	}

	created, err := s.store.GetLead(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	s.indexLead(ctx, created)
	return s.renderLead(ctx, created)
}

func (s *Service) LeadByID(ctx context.Context, leadID string) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}
	return s.renderLead(ctx, lead)
}

func (s *Service) ListLeads(ctx context.Context) ([]map[string]any, error) {
	leads, err := s.store.ListLeads(ctx)
	if err != nil {
		return nil, err
	}
	return s.renderLeads(ctx, leads)
}

func (s *Service) ListLeadsByOwner(ctx context.Context, actor rbac.Actor, ownerID string) ([]map[string]any, error) {
	if !util.WellFormedID(ownerID) {
		return nil, validationError("Invalid user id format")
	}
	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("User not found")
		}
		return nil, err
	}
	if !rbac.CanViewAssignedLeads(actor, ownerID) {
		return nil, unauthorized("Cannot access another user's leads")
	}
	leads, err := s.store.ListLeadsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.renderLeads(ctx, leads)
}

// UpdateLead runs the full mutation pipeline: load, authorize, diff, append
// the generated history, persist as one aggregate. Reassignment is just the
// assignedTo field diff, but it takes effect atomically with the write - the
// new owner's update rights begin when the version bump lands.
func (s *Service) UpdateLead(ctx context.Context, actor rbac.Actor, leadID string, patch LeadPatch) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}
	if !rbac.CanUpdateLead(actor, lead.AssignedTo) {
		return nil, unauthorized("Not allowed to update this lead")
	}
	if patch.AssignedTo != "" && patch.AssignedTo != lead.AssignedTo {
		if _, err := s.store.GetUserByID(ctx, patch.AssignedTo); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Assigned user not found")
			}
			return nil, err
		}
	}

	updated, entries := ApplyLeadPatch(lead, patch, time.Now().UTC())
	if len(entries) == 0 {
		// Nothing changed; no write, no history growth.
		return s.renderLead(ctx, lead)
	}

	saved, err := s.store.SaveLeadUpdate(ctx, updated, lead.Version, entries)
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, conflict("Lead was modified concurrently, reload and retry")
	}

	fresh, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	s.indexLead(ctx, fresh)
	return s.renderLead(ctx, fresh)
}

func (s *Service) DeleteLead(ctx context.Context, actor rbac.Actor, leadID string) error {
	if !rbac.CanDeleteLead(actor) {
		return unauthorized("Only admins can delete leads")
	}
	changed, err := s.store.DeleteLead(ctx, leadID)
	if err != nil {
		return err
	}
	if !changed {
		return notFound("Lead not found")
	}
	if s.indexer != nil {
		s.indexer.RemoveLead(leadID)
	}
	return nil
}

// History ledger

func (s *Service) EditHistoryDescription(ctx context.Context, actor rbac.Actor, leadID, historyID, description string) (map[string]any, error) {
	if strings.TrimSpace(description) == "" {
		return nil, validationError("description is required")
	}
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}
	if !rbac.CanEditHistoryDescription(actor, lead.AssignedTo) {
		return nil, unauthorized("Not allowed to edit this lead's history")
	}

	found := false
	for _, entry := range lead.StatusHistory {
		if entry.ID == historyID {
			found = true
			break
		}
	}
	if !found {
		return nil, notFound("History entry not found")
	}

	changed, err := s.store.UpdateHistoryDescription(ctx, leadID, historyID, description)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, notFound("History entry not found")
	}

	fresh, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.renderLead(ctx, fresh)
}

// Campaign subledger

func (s *Service) AddCampaign(ctx context.Context, actor rbac.Actor, leadID string, input CampaignInput) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}

	if _, ok := allowedCampaignCategories[input.Category]; !ok {
		return nil, validationError("category must be Promotional, Follow-up, or Newsletter")
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, validationError("content is required")
	}

	sentBy := firstNonBlank(input.SentBy, actor.ID)
	if !rbac.CanSetCampaignSender(actor, sentBy) {
		return nil, unauthorized("Cannot attribute a campaign to another user")
	}
	if _, err := s.store.GetUserByID(ctx, sentBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Sender not found")
		}
		return nil, err
	}

	sentAt := time.Now().UTC()
	if input.SentAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.SentAt)
		if err != nil {
			return nil, validationError("sentAt must be a valid RFC 3339 timestamp")
		}
		sentAt = parsed
	}

	entry := store.CampaignEntry{
		ID:       util.NewID("cmp"),
		LeadID:   lead.ID,
		Category: input.Category,
		Content:  input.Content,
		SentBy:   sentBy,
		SentAt:   sentAt,
	}
	if err := s.store.InsertCampaign(ctx, entry); err != nil {
		return nil, err
	}

	if input.Deliver {
		s.deliverCampaign(lead.Email, entry)
	}

	fresh, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.renderLead(ctx, fresh)
}

func (s *Service) UpdateCampaign(ctx context.Context, actor rbac.Actor, leadID, campaignID string, input CampaignInput) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}

	var campaign *store.CampaignEntry
	for i := range lead.EmailCampaigns {
		if lead.EmailCampaigns[i].ID == campaignID {
			campaign = &lead.EmailCampaigns[i]
			break
		}
	}
	if campaign == nil {
		return nil, notFound("Campaign not found")
	}

	if !rbac.CanEditCampaign(actor, campaign.SentBy) {
		return nil, unauthorized("Not allowed to edit this campaign")
	}

	if input.Category != "" {
		if _, ok := allowedCampaignCategories[input.Category]; !ok {
			return nil, validationError("category must be Promotional, Follow-up, or Newsletter")
		}
		campaign.Category = input.Category
	}
	if input.Content != "" {
		campaign.Content = input.Content
	}
	if input.SentBy != "" && input.SentBy != campaign.SentBy {
		if !rbac.CanSetCampaignSender(actor, input.SentBy) {
			return nil, unauthorized("Cannot attribute a campaign to another user")
		}
		if _, err := s.store.GetUserByID(ctx, input.SentBy); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, notFound("Sender not found")
			}
			return nil, err
		}
		campaign.SentBy = input.SentBy
	}
	if input.SentAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.SentAt)
		if err != nil {
			return nil, validationError("sentAt must be a valid RFC 3339 timestamp")
		}
		campaign.SentAt = parsed
	}

	changed, err := s.store.UpdateCampaign(ctx, *campaign)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, notFound("Campaign not found")
	}

	fresh, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.renderLead(ctx, fresh)
}

// DeleteCampaign removes the entry from the subledger. Deliberately no
// statusHistory entry is written for the removal (product decision pending).
func (s *Service) DeleteCampaign(ctx context.Context, actor rbac.Actor, leadID, campaignID string) (map[string]any, error) {
	if !rbac.CanDeleteCampaign(actor) {
		return nil, unauthorized("Only admins can delete campaigns")
	}
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Lead not found")
		}
		return nil, err
	}
	changed, err := s.store.DeleteCampaign(ctx, leadID, campaignID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, notFound("Campaign not found")
	}

	fresh, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.renderLead(ctx, fresh)
}

func (s *Service) deliverCampaign(to string, entry store.CampaignEntry) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	go func() {
		if err := s.mailer.DeliverCampaign(to, entry.Category, entry.Content); err != nil {
			log.Printf("campaign %s: delivery to %s failed: %v", entry.ID, to, err)
		}
	}()
}

// SearchLeads answers a full-text query; callers get an empty result set
// rather than an error when no search backend is wired.
func (s *Service) SearchLeads(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	if s.searcher == nil {
		return []map[string]any{}, nil
	}
	return s.searcher.SearchLeads(ctx, query, limit)
}

func (s *Service) ComposeEmail(ctx context.Context, description, recipient, category string) (map[string]any, error) {
	if s.composer == nil {
		return nil, domainError(503, "COMPOSE_UNAVAILABLE", "Draft generation is not configured", nil)
	}
	if strings.TrimSpace(description) == "" {
		return nil, validationError("description is required")
	}
	subject, body, err := s.composer.ComposeDraft(ctx, description, recipient, category)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"subject": subject,
		"body":    body,
	}, nil
}

func (s *Service) indexLead(ctx context.Context, lead store.Lead) {
	if s.indexer == nil {
		return
	}
	ownerUsername := ""
	if lead.AssignedTo != "" {
		names, err := s.store.UsernamesByID(ctx, []string{lead.AssignedTo})
		if err == nil {
			ownerUsername = names[lead.AssignedTo]
		}
	}
	s.indexer.IndexLead(lead, ownerUsername)
}

// Rendering

func renderUser(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"role":      user.Role,
		"createdAt": user.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Service) renderLead(ctx context.Context, lead store.Lead) (map[string]any, error) {
	items, err := s.renderLeads(ctx, []store.Lead{lead})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// renderLeads resolves every weak user reference (owner, history owner
// snapshots, campaign senders) to usernames in one lookup and returns the
// populated aggregates.
func (s *Service) renderLeads(ctx context.Context, leads []store.Lead) ([]map[string]any, error) {
	idSet := make(map[string]struct{})
	for _, lead := range leads {
		if lead.AssignedTo != "" {
			idSet[lead.AssignedTo] = struct{}{}
		}
		for _, entry := range lead.StatusHistory {
			if entry.AssignedTo != "" {
				idSet[entry.AssignedTo] = struct{}{}
			}
		}
		for _, entry := range lead.EmailCampaigns {
			idSet[entry.SentBy] = struct{}{}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	names, err := s.store.UsernamesByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	userRef := func(id string) any {
		if id == "" {
			return nil
		}
		ref := map[string]any{"id": id}
		if username, ok := names[id]; ok {
			ref["username"] = username
		} else {
			ref["username"] = nil
		}
		return ref
	}

	items := make([]map[string]any, 0, len(leads))
	for _, lead := range leads {
		history := make([]map[string]any, 0, len(lead.StatusHistory))
		for _, entry := range lead.StatusHistory {
			history = append(history, map[string]any{
				"id":          entry.ID,
				"status":      entry.Status,
				"assignedTo":  userRef(entry.AssignedTo),
				"description": entry.Description,
				"updatedAt":   entry.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		campaigns := make([]map[string]any, 0, len(lead.EmailCampaigns))
		for _, entry := range lead.EmailCampaigns {
			campaigns = append(campaigns, map[string]any{
				"id":       entry.ID,
				"category": entry.Category,
				"content":  entry.Content,
				"sentBy":   userRef(entry.SentBy),
				"sentAt":   entry.SentAt.UTC().Format(time.RFC3339),
			})
		}
		items = append(items, map[string]any{
			"id":             lead.ID,
			"schoolName":     lead.SchoolName,
			"email":          lead.Email,
			"address":        lead.Address,
			"phoneNumber":    lead.PhoneNumber,
			"progressStatus": lead.ProgressStatus,
			"assignedTo":     userRef(lead.AssignedTo),
			"statusHistory":  history,
			"emailCampaigns": campaigns,
			"updatedAt":      lead.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}
