package accountsync_test

import (
	"context"
	"errors"
	"testing"

	identitymem "github.com/flowreach/accountsync/identity/memory"
	"github.com/flowreach/accountsync/pkg/accountsync"
	storagemem "github.com/flowreach/accountsync/storage/memory"
)

func newTestReconciler(t *testing.T) (*accountsync.Reconciler, *identitymem.Provider, *storagemem.Store) {
	t.Helper()

	identity := identitymem.New()
	profiles := storagemem.New()
	reconciler, err := accountsync.NewReconciler(identity, profiles, accountsync.Config{
		ProProductIDs:     []string{"prod_pro_1"},
		TrialProductIDs:   []string{"prod_trial_1"},
		InitialCredits:    100,
		MonthlyCredits:    50,
		EnableInvites:     true,
		InviteRedirectURL: "https://app.example.com/welcome",
	})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	return reconciler, identity, profiles
}

func boolPtr(b bool) *bool { return &b }

func proPurchaseParams(email string) accountsync.EnsureAccountParams {
	return accountsync.EnsureAccountParams{
		Email:             email,
		FullName:          "Ada Lovelace",
		ExternalContactID: "crm-42",
		DesiredRole:       accountsync.RolePro,
		Activate:          boolPtr(true),
		SendInvite:        true,
	}
}

func TestEnsureAccount_CreatesAccount(t *testing.T) {
	reconciler, identity, profiles := newTestReconciler(t)
	ctx := context.Background()

	result, err := reconciler.EnsureAccount(ctx, proPurchaseParams("Ada@Example.com "))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if !result.CreatedNewUser {
		t.Error("expected a new user")
	}
	if result.ResolvedRole != accountsync.RolePro {
		t.Errorf("role = %q, want pro", result.ResolvedRole)
	}
	if !result.Active {
		t.Error("expected active account")
	}

	// Email is normalized before lookup and creation
	stored, err := identity.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("identity lookup failed: %v", err)
	}
	if stored.ID != result.UserID {
		t.Errorf("identity id = %q, want %q", stored.ID, result.UserID)
	}

	profile, err := profiles.GetProfile(ctx, result.UserID)
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if profile.Preferences[accountsync.PrefExternalContactID] != "crm-42" {
		t.Errorf("external contact id = %v, want crm-42", profile.Preferences[accountsync.PrefExternalContactID])
	}
	if profile.Preferences[accountsync.PrefInitialCredits] != 100 {
		t.Errorf("initial credits = %v, want 100", profile.Preferences[accountsync.PrefInitialCredits])
	}
	if profile.StatusUpdatedAt.IsZero() {
		t.Error("expected status_updated_at to be set")
	}
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	reconciler, identity, profiles := newTestReconciler(t)
	ctx := context.Background()

	var userID string
	for i := 0; i < 3; i++ {
		result, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
		if err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
		if userID == "" {
			userID = result.UserID
		} else if result.UserID != userID {
			t.Fatalf("replay %d produced a second user %q", i, result.UserID)
		}
	}

	profile, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if profile.Role != accountsync.RolePro {
		t.Errorf("role = %q, want pro", profile.Role)
	}
	if !profile.Active {
		t.Error("expected active account")
	}

	// Exactly one invitation despite three deliveries
	if invites := identity.Invites(); len(invites) != 1 {
		t.Errorf("expected 1 invite, got %d", len(invites))
	}
}

func TestEnsureAccount_RoleMonotonicity(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	// A later trial signup must not downgrade pro to user
	result, err := reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
		Email:       "ada@example.com",
		DesiredRole: accountsync.RoleUser,
		Activate:    boolPtr(true),
	})
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if result.ResolvedRole != accountsync.RolePro {
		t.Errorf("role = %q, want pro", result.ResolvedRole)
	}

	profile, _ := profiles.GetProfile(ctx, first.UserID)
	if profile.Role != accountsync.RolePro {
		t.Errorf("stored role = %q, want pro", profile.Role)
	}
}

func TestEnsureAccount_NeverAssignsAdmin(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	ctx := context.Background()

	result, err := reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
		Email:       "ada@example.com",
		DesiredRole: accountsync.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if result.ResolvedRole == accountsync.RoleAdmin {
		t.Fatal("admin must never be assigned automatically")
	}
	if result.ResolvedRole != accountsync.RoleUser {
		t.Errorf("role = %q, want user (clamped to prior role)", result.ResolvedRole)
	}
}

func TestEnsureAccount_AdminIsNotDowngraded(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{Email: "root@example.com"})
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	// Promote out of band, as an operator would
	profile, _ := profiles.GetProfile(ctx, first.UserID)
	profile.Role = accountsync.RoleAdmin
	if err := profiles.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("seed admin failed: %v", err)
	}

	result, err := reconciler.EnsureAccount(ctx, proPurchaseParams("root@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if result.ResolvedRole != accountsync.RoleAdmin {
		t.Errorf("role = %q, want admin preserved", result.ResolvedRole)
	}
}

func TestEnsureAccount_PreservesUnrelatedPreferences(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	profile, _ := profiles.GetProfile(ctx, first.UserID)
	profile.Preferences["theme"] = "dark"
	if err := profiles.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("seed preference failed: %v", err)
	}

	if _, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com")); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	profile, _ = profiles.GetProfile(ctx, first.UserID)
	if profile.Preferences["theme"] != "dark" {
		t.Errorf("unrelated preference lost: %v", profile.Preferences["theme"])
	}
}

func TestEnsureAccount_CreditDefaultsOnlyOnCreation(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	// The application spends some credits
	profile, _ := profiles.GetProfile(ctx, first.UserID)
	profile.Preferences[accountsync.PrefInitialCredits] = 7
	if err := profiles.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("seed credits failed: %v", err)
	}

	if _, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com")); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	profile, _ = profiles.GetProfile(ctx, first.UserID)
	if profile.Preferences[accountsync.PrefInitialCredits] != 7 {
		t.Errorf("credits reset on replay: %v", profile.Preferences[accountsync.PrefInitialCredits])
	}
}

// conflictingIdentity simulates losing a create race: the first CreateUser
// reports "already exists" because a concurrent duplicate webhook won.
type conflictingIdentity struct {
	*identitymem.Provider
	creates int
}

func (c *conflictingIdentity) CreateUser(ctx context.Context, email string, metadata map[string]interface{}) (*accountsync.Identity, error) {
	c.creates++
	if c.creates == 1 {
		if _, err := c.Provider.CreateUser(ctx, email, metadata); err != nil {
			return nil, err
		}
		return nil, accountsync.ErrIdentityExists
	}
	return c.Provider.CreateUser(ctx, email, metadata)
}

func TestEnsureAccount_CreateRaceConverges(t *testing.T) {
	identity := &conflictingIdentity{Provider: identitymem.New()}
	profiles := storagemem.New()
	reconciler, err := accountsync.NewReconciler(identity, profiles, accountsync.Config{})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	result, err := reconciler.EnsureAccount(context.Background(), proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed after create conflict: %v", err)
	}
	if result.CreatedNewUser {
		t.Error("conflict loser must report an existing user")
	}
	if result.UserID == "" {
		t.Error("expected the winner's user id")
	}
}

// failingInviter delivers accounts but cannot send invitations.
type failingInviter struct {
	*identitymem.Provider
}

func (f *failingInviter) InviteByEmail(context.Context, string, accountsync.InviteOptions) error {
	return errors.New("smtp unavailable")
}

func TestEnsureAccount_InviteFailureDoesNotRollBack(t *testing.T) {
	identity := &failingInviter{Provider: identitymem.New()}
	profiles := storagemem.New()
	reconciler, err := accountsync.NewReconciler(identity, profiles, accountsync.Config{EnableInvites: true})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	result, err := reconciler.EnsureAccount(context.Background(), proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("invite failure must not fail the account write: %v", err)
	}
	if _, err := profiles.GetProfile(context.Background(), result.UserID); err != nil {
		t.Fatalf("account write rolled back: %v", err)
	}
}

// failingStore simulates an unavailable profile store.
type failingStore struct{}

func (failingStore) GetProfile(context.Context, string) (*accountsync.Profile, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) UpsertProfile(context.Context, *accountsync.Profile) error {
	return errors.New("connection refused")
}

func TestEnsureAccount_StoreFailureIsRetryable(t *testing.T) {
	reconciler, err := accountsync.NewReconciler(identitymem.New(), failingStore{}, accountsync.Config{})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	_, err = reconciler.EnsureAccount(context.Background(), proPurchaseParams("ada@example.com"))
	if !errors.Is(err, accountsync.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestEnsureAccount_MissingEmail(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)

	_, err := reconciler.EnsureAccount(context.Background(), accountsync.EnsureAccountParams{Email: "  "})
	if !errors.Is(err, accountsync.ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestEnsureAccount_NilActivatePreservesSuspension(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if _, err := reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
		Email:           "ada@example.com",
		Active:          false,
		DisabledMessage: "payment failed",
	}); err != nil {
		t.Fatalf("UpdateActiveStatus failed: %v", err)
	}

	// A bare contact update must not resurrect a suspended account
	result, err := reconciler.EnsureAccount(ctx, accountsync.EnsureAccountParams{
		Email:       "ada@example.com",
		DesiredRole: accountsync.RoleUser,
	})
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if result.Active {
		t.Error("user update flipped a suspended account back to active")
	}

	profile, _ := profiles.GetProfile(ctx, first.UserID)
	if profile.Active {
		t.Error("stored profile reactivated")
	}
}

func TestUpdateActiveStatus_UnknownContactSkips(t *testing.T) {
	reconciler, identity, _ := newTestReconciler(t)

	result, err := reconciler.UpdateActiveStatus(context.Background(), accountsync.UpdateStatusParams{
		Email:  "ghost@example.com",
		Active: false,
	})
	if err != nil {
		t.Fatalf("UpdateActiveStatus failed: %v", err)
	}
	if !result.Skipped {
		t.Error("expected skipped result for unknown contact")
	}

	// No phantom account
	if _, err := identity.GetUserByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, accountsync.ErrIdentityNotFound) {
		t.Fatalf("expected no identity, got %v", err)
	}
}

func TestUpdateActiveStatus_SuspendAndRecover(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}

	suspended, err := reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
		Email:           "ada@example.com",
		Active:          false,
		DisabledMessage: "payment failed",
	})
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if suspended.Skipped || suspended.Active {
		t.Fatalf("expected a suspension write, got %+v", suspended)
	}

	profile, _ := profiles.GetProfile(ctx, first.UserID)
	if profile.Preferences[accountsync.PrefDisabledMessage] != "payment failed" {
		t.Errorf("disabled message = %v", profile.Preferences[accountsync.PrefDisabledMessage])
	}
	if profile.Role != accountsync.RolePro {
		t.Errorf("suspension touched role: %q", profile.Role)
	}

	recovered, err := reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
		Email:  "ada@example.com",
		Active: true,
	})
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if recovered.Skipped || !recovered.Active {
		t.Fatalf("expected a recovery write, got %+v", recovered)
	}

	profile, _ = profiles.GetProfile(ctx, first.UserID)
	if _, ok := profile.Preferences[accountsync.PrefDisabledMessage]; ok {
		t.Error("recovery must clear the disabled message")
	}
	if profile.Preferences[accountsync.PrefExternalContactID] != "crm-42" {
		t.Error("recovery clobbered the external contact id")
	}
}

func TestUpdateActiveStatus_NoChangeSkipsWrite(t *testing.T) {
	reconciler, _, profiles := newTestReconciler(t)
	ctx := context.Background()

	first, err := reconciler.EnsureAccount(ctx, proPurchaseParams("ada@example.com"))
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	before, _ := profiles.GetProfile(ctx, first.UserID)

	// Account is already active with no disabled message
	result, err := reconciler.UpdateActiveStatus(ctx, accountsync.UpdateStatusParams{
		Email:  "ada@example.com",
		Active: true,
	})
	if err != nil {
		t.Fatalf("UpdateActiveStatus failed: %v", err)
	}
	if !result.Skipped {
		t.Error("expected duplicate delivery to be skipped")
	}

	after, _ := profiles.GetProfile(ctx, first.UserID)
	if !after.StatusUpdatedAt.Equal(before.StatusUpdatedAt) {
		t.Error("skipped update still wrote the profile")
	}
}
