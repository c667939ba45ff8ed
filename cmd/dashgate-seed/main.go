package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/dashgate/dashgate/pkg/observability"
	"github.com/dashgate/dashgate/pkg/rbac"
)

// defaultPages is the page registry a fresh installation starts with: the
// admin section with its children, plus the standalone dashboard.
var defaultPages = []rbac.Page{
	{Name: "Dashboard", URL: "/dashboard", MenuIcon: "dashboard", IsMenu: true, SortNo: 1, IsActive: true},
	{Name: "Administration", URL: "/admin", MenuIcon: "settings", IsParent: true, IsMenu: true, SortNo: 2, IsActive: true},
	{Name: "Groups", URL: "/admin/groups", MenuIcon: "group", IsMenu: true, SortNo: 1, IsActive: true},
	{Name: "Users", URL: "/admin/users", MenuIcon: "person", IsMenu: true, SortNo: 2, IsActive: true},
	{Name: "Pages", URL: "/admin/pages", MenuIcon: "web", IsMenu: true, SortNo: 3, IsActive: true},
	{Name: "Permissions", URL: "/admin/permissions", MenuIcon: "lock", IsMenu: true, SortNo: 4, IsActive: true},
}

func main() {
	driver := flag.String("driver", "postgres", "Database driver (postgres or sqlite3)")
	dbURL := flag.String("db-url", os.Getenv("DASHGATE_DB_URL"), "Database URL")
	adminUser := flag.String("admin-user", "", "Optional superadmin username to create")
	skipMigrations := flag.Bool("skip-migrations", false, "Assume the schema already exists")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *dbURL == "" {
		log.Fatal("db-url is required (or set DASHGATE_DB_URL)")
	}

	db, err := sql.Open(*driver, *dbURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("database not reachable")
	}

	if !*skipMigrations {
		// The migration DDL targets Postgres; SQLite databases are
		// expected to carry the schema already.
		if *driver != "postgres" {
			log.Fatal("automatic migrations require the postgres driver; use -skip-migrations for sqlite3")
		}
		logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
		if err := rbac.RunMigrations(ctx, db, logger); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
		log.Info("migrations applied")
	}

	store := rbac.NewStore(db, nil)
	evaluator := rbac.NewEvaluator(store, nil)

	if err := seedPages(ctx, store, log); err != nil {
		log.WithError(err).Fatal("failed to seed pages")
	}

	if *adminUser != "" {
		if err := seedAdminUser(ctx, db, *adminUser); err != nil {
			log.WithError(err).Fatal("failed to create superadmin user")
		}
		log.WithField("username", *adminUser).Info("superadmin user ready")
	}

	granted, err := evaluator.InitializeSuperadminPermissions(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize superadmin permissions")
	}
	log.WithField("pages", granted).Info("superadmin permissions granted")

	log.Info("seed complete")
}

func seedPages(ctx context.Context, store *rbac.Store, log *logrus.Logger) error {
	var adminSectionID int64

	for _, page := range defaultPages {
		existing, err := store.GetPageByURL(ctx, page.URL)
		if err == nil {
			log.WithField("url", page.URL).Debug("page already registered")
			if existing.IsParent {
				adminSectionID = existing.ID
			}
			continue
		}
		if !errors.Is(err, rbac.ErrPageNotFound) {
			return err
		}

		if !page.IsParent && page.URL != "/dashboard" {
			page.ParentID = &adminSectionID
		}
		if err := store.CreatePage(ctx, &page); err != nil {
			return err
		}
		if page.IsParent {
			adminSectionID = page.ID
		}
		log.WithField("url", page.URL).Info("page registered")
	}
	return nil
}

func seedAdminUser(ctx context.Context, db *sql.DB, username string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (username, group_id, designation)
		SELECT $1, 1, 'superadmin'
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE username = $2 AND deleted_at IS NULL)
	`, username, username)
	return err
}
