package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/crmkeeper/internal/metrics"
	"github.com/atinyakov/crmkeeper/internal/models"
	"github.com/atinyakov/crmkeeper/internal/seed"
)

// IdentityRepository defines the persistence operations
// required by the identity service.
type IdentityRepository interface {
	// GetUser returns the identity registered for email, or nil.
	GetUser(ctx context.Context, email string) (*models.Identity, error)
	// RegisterUser inserts identity and reports false when the email is taken.
	RegisterUser(ctx context.Context, identity models.Identity) (bool, error)
	// SaveUser inserts or replaces identity.
	SaveUser(ctx context.Context, identity models.Identity) error
}

// CustomerSeeder stores an initial dataset for a tenant that has none.
type CustomerSeeder interface {
	SeedCustomers(ctx context.Context, tenant string, customers []models.Customer) (bool, error)
}

// IdentityService registers and authenticates users.
type IdentityService struct {
	repo     IdentityRepository
	demo     *seed.DemoTenant
	seeder   CustomerSeeder
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
	cost     int
}

// IdentityOption configures an IdentityService.
type IdentityOption func(*IdentityService)

// WithDemoTenant enables the pre-provisioned demo tenant. seeder receives its
// dataset on first login.
func WithDemoTenant(demo *seed.DemoTenant, seeder CustomerSeeder) IdentityOption {
	return func(s *IdentityService) {
		s.demo = demo
		s.seeder = seeder
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) IdentityOption {
	return func(s *IdentityService) {
		s.cost = cost
	}
}

// NewIdentityService constructs an IdentityService on repo.
func NewIdentityService(repo IdentityRepository, log *zap.Logger, opts ...IdentityOption) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &IdentityService{
		repo:     repo,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// Register creates a new identity. Required fields are validated before any
// write; a taken email yields ErrDuplicateEmail.
func (s *IdentityService) Register(ctx context.Context, name, email, password string) (models.Identity, error) {
	identity, err := s.register(ctx, name, email, password)
	metrics.AuthAttempts.WithLabelValues("register", metrics.Outcome(err)).Inc()
	return identity, err
}

func (s *IdentityService) register(ctx context.Context, name, email, password string) (models.Identity, error) {
	req := registration{Name: name, Email: models.NormalizeEmail(email), Password: password}
	if err := validateStruct(s.validate, req); err != nil {
		return models.Identity{}, err
	}
	if len(password) > maxPasswordBytes {
		return models.Identity{}, &ValidationError{Errors: map[string]string{
			"password": fmt.Sprintf("must be at most %d bytes", maxPasswordBytes),
		}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	identity := models.Identity{
		ID:           "u_" + uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Avatar:       avatarURL(req.Name),
	}
	ok, err := s.repo.RegisterUser(ctx, identity)
	if err != nil {
		return models.Identity{}, fmt.Errorf("register user: %w", err)
	}
	if !ok {
		return models.Identity{}, ErrDuplicateEmail
	}
	s.log.Info("identity registered", zap.String("id", identity.ID))
	return identity, nil
}

// Authenticate checks the credentials of email. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (models.Identity, error) {
	identity, err := s.authenticate(ctx, models.NormalizeEmail(email), password)
	metrics.AuthAttempts.WithLabelValues("login", metrics.Outcome(err)).Inc()
	return identity, err
}

func (s *IdentityService) authenticate(ctx context.Context, email, password string) (models.Identity, error) {
	if email == "" || password == "" {
		return models.Identity{}, ErrInvalidCredentials
	}
	if s.demo.Matches(email) {
		if err := s.provisionDemo(ctx, password); err != nil {
			return models.Identity{}, err
		}
	}

	identity, err := s.repo.GetUser(ctx, email)
	if err != nil {
		return models.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if identity == nil {
		return models.Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return models.Identity{}, ErrInvalidCredentials
	}
	return *identity, nil
}

// provisionDemo registers the demo identity with the supplied password on its
// first login and seeds its dataset when the tenant has no customers.
func (s *IdentityService) provisionDemo(ctx context.Context, password string) error {
	existing, err := s.repo.GetUser(ctx, s.demo.Email)
	if err != nil {
		return fmt.Errorf("lookup demo user: %w", err)
	}
	if existing == nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		_, err = s.repo.RegisterUser(ctx, models.Identity{
			ID:           s.demo.ID,
			Name:         s.demo.Name,
			Email:        s.demo.Email,
			PasswordHash: string(hash),
			Avatar:       avatarURL(s.demo.Name),
		})
		if err != nil {
			return fmt.Errorf("provision demo user: %w", err)
		}
		s.log.Info("demo tenant provisioned")
	}
	if s.seeder == nil {
		return nil
	}
	seeded, err := s.seeder.SeedCustomers(ctx, s.demo.Email, s.demo.Dataset(s.now()))
	if err != nil {
		return fmt.Errorf("seed demo tenant: %w", err)
	}
	if seeded {
		s.log.Info("demo tenant seeded", zap.Int("customers", s.demo.Customers))
	}
	return nil
}

// UpdateProfile applies patch to the registered identity of email and returns
// the stored result.
func (s *IdentityService) UpdateProfile(ctx context.Context, email string, patch models.IdentityPatch) (models.Identity, error) {
	identity, err := s.repo.GetUser(ctx, email)
	if err != nil {
		return models.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if identity == nil {
		return models.Identity{}, ErrNotFound
	}
	if patch.Name != nil && *patch.Name == "" {
		return models.Identity{}, &ValidationError{Errors: map[string]string{"name": "is required"}}
	}
	identity.Apply(patch)
	if err := s.repo.SaveUser(ctx, *identity); err != nil {
		return models.Identity{}, fmt.Errorf("save user: %w", err)
	}
	return *identity, nil
}

func avatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=2563eb&color=fff"
}
