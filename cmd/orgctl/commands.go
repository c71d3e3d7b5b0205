package main

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
	"github.com/dispatch-ext/backend/pkg/queue"
	"github.com/dispatch-ext/backend/pkg/redis"
)

type MigrateCmd struct {
	Direction string `arg:"" enum:"up,down" help:"Migration direction (up or down)"`
}

func (c *MigrateCmd) Run(ctx *cliCtx) error {
	if err := database.Migrate(ctx.cfg.Database.DSN(), c.Direction); err != nil {
		return err
	}
	ctx.logger.Info("migrations applied", zap.String("direction", c.Direction))
	return nil
}

type UserCmd struct {
	Promote UserPromoteCmd `cmd:"" help:"Grant SUPER_ADMIN to a user"`
	Demote  UserDemoteCmd  `cmd:"" help:"Revoke SUPER_ADMIN from a user"`
}

type UserPromoteCmd struct {
	Email string `required:"" help:"Email of the user"`
}

func (c *UserPromoteCmd) Run(ctx *cliCtx) error {
	return setRole(ctx, c.Email, models.GlobalRoleSuperAdmin)
}

type UserDemoteCmd struct {
	Email string `required:"" help:"Email of the user"`
}

func (c *UserDemoteCmd) Run(ctx *cliCtx) error {
	return setRole(ctx, c.Email, models.GlobalRoleUser)
}

func setRole(ctx *cliCtx, email string, role models.GlobalRole) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	pool, err := database.NewPostgresPool(ctx, ctx.cfg.Database.DSN(), poolOptions(ctx.cfg.Database), ctx.logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	u, err := auth.NewRepository(pool).SetRole(ctx, email, role)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no user with email %s; the user must sign in once first", email)
	}
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	fmt.Printf("%s (%s) is now %s\n", u.Email, u.ID, u.Role)
	return nil
}

type SeatsCmd struct {
	Recount SeatsRecountCmd `cmd:"" help:"Queue a seat recount for an organization"`
}

type SeatsRecountCmd struct {
	OrganizationID string `arg:"" name:"organization-id" help:"Organization to recount"`
}

func (c *SeatsRecountCmd) Run(ctx *cliCtx) error {
	rdb, err := redis.NewClient(ctx, redisOptions(ctx.cfg.Redis), ctx.logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	if err := queue.NewQueue(rdb.Client, ctx.logger).EnqueueSeatRecount(ctx, c.OrganizationID); err != nil {
		return err
	}
	fmt.Printf("seat recount queued for %s\n", c.OrganizationID)
	return nil
}
