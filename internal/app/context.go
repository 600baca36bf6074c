package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasktrove/internal/config"
	"tasktrove/internal/domain"
	"tasktrove/internal/repo"
)

// ResolveProjectAndConfig picks the active project and ensures a project +
// config exist in DB, seeding defaults if missing. It prefers the override,
// then falls back to the single project in the DB. If the overridden project
// does not exist, it is created on the fly with the default sections.
func ResolveProjectAndConfig(ctx context.Context, projectOverride string, r repo.Repo) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("project not specified; use --project or run tt project init")
		}
		projectID = p.ID
	}
	seedCfg := config.Default(projectID)

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := seedProject(ctx, r, projectID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertProjectConfig(ctx, projectID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed project config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}

// seedProject inserts a project with the seed config's default sections.
func seedProject(ctx context.Context, r repo.Repo, projectID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(projectID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	name := seedCfg.Project.Name
	if name == "" {
		name = "Inbox"
	}
	if err := r.InsertProject(ctx, tx, domain.Project{ID: projectID, Name: name, CreatedAt: now}); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for i, def := range seedCfg.Sections.Defaults {
		s := domain.Section{
			ID:        fmt.Sprintf("%s-sec-%d", projectID, i),
			ProjectID: projectID,
			Name:      def.Name,
			Color:     def.Color,
			Position:  i,
			Items:     []string{},
		}
		if err := r.InsertSection(ctx, tx, s); err != nil {
			return fmt.Errorf("insert section %q: %w", def.Name, err)
		}
	}
	if err := r.UpsertProjectConfigTx(ctx, tx, projectID, seedCfg); err != nil {
		return fmt.Errorf("insert project config: %w", err)
	}
	return tx.Commit()
}
