package usecase

import (
	"context"
	"errors"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/domain/model"
	"workflow-dashboard/internal/domain/ports/repository"
	"workflow-dashboard/internal/infra/logging"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// UserUseCase resolves the caller of every request to an existing user.
type UserUseCase interface {
	Authenticate(ctx context.Context, userID string) (*model.User, error)
	RegisterOrFetch(ctx context.Context, email, name string) (*model.User, error)
}

type userUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *userUC {
	return &userUC{
		users: users,
		tm:    tm,
		log:   logger,
	}
}

// Authenticate returns the user behind a verified session subject. A token
// for a user that no longer exists is Unauthorized.
func (u *userUC) Authenticate(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, domain.Unauthorized("User not authenticated")
	}
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized("User not authenticated")
		}
		return nil, domain.Internal("could not load user", err)
	}
	return usr, nil
}

func (u *userUC) RegisterOrFetch(ctx context.Context, email, name string) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.RegisterOrFetch")()

	nu, err := model.NewUser("", email, name)
	if err != nil {
		return nil, domain.BadRequest("a valid email is required")
	}

	var user *model.User
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		existing, err := u.users.FindByEmail(ctx, tx, nu.Email)
		switch {
		case err == nil:
			user = existing
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if err := u.users.Save(ctx, tx, nu); err != nil {
			return err
		}
		user = nu
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
