package cmd

import (
	"fmt"
	"log"

	"github.com/digicoders/feeledger/internal/auth"
	"github.com/digicoders/feeledger/internal/core/database"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	adminEmail    string
	adminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with permissions, staff accounts and courses",
	Long:  `Seed the database with the permission catalogue, an admin and a cashier account, and the technology price list.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := database.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := database.OpenGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"fees", "registrations", "user_permissions", "technologies"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared ledger, registrations, grants and technologies")
		}

		password := adminPassword
		if password == "" {
			password, err = auth.GenerateRandomToken()
			if err != nil {
				log.Fatalf("failed to generate password: %v", err)
			}
			fmt.Println("Generated password for seeded accounts:", password)
		}
		hash, err := auth.HashPassword(password, cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		permissions := []struct {
			Name string
			Desc string
		}{
			{auth.PermissionAdmin, "full administrator"},
			{auth.PermissionViewPayments, "Can list and inspect payments"},
			{auth.PermissionRecordPayments, "Can record fee payments"},
			{auth.PermissionVerifyPayments, "Can accept or reject payments"},
			{auth.PermissionDeletePayments, "Can delete ledger entries"},
			{auth.PermissionManageRegistrations, "Can enrol students"},
		}

		for _, p := range permissions {
			var pid int64
			if err := db.Raw("SELECT id FROM permissions WHERE name = ?", p.Name).Row().Scan(&pid); err != nil {
				if err := db.Exec("INSERT INTO permissions (name, description, created_at) VALUES (?, ?, now())", p.Name, p.Desc).Error; err != nil {
					log.Fatalf("failed to insert permission %s: %v", p.Name, err)
				}
			}
		}

		adminID := ensureUser(db, adminEmail, "Ledger Admin", hash)
		grant(db, adminID, auth.PermissionAdmin)
		fmt.Println("Granted admin to:", adminEmail)

		cashierEmail := "cashier@digicoders.in"
		cashierID := ensureUser(db, cashierEmail, "Front Desk Cashier", hash)
		for _, p := range []string{auth.PermissionViewPayments, auth.PermissionRecordPayments, auth.PermissionManageRegistrations} {
			grant(db, cashierID, p)
		}
		fmt.Println("Granted cashier permissions to:", cashierEmail)

		technologies := []struct {
			Name  string
			Price string
		}{
			{"Python Full Stack", "15000.00"},
			{"Java Full Stack", "18000.00"},
			{"MERN Stack", "16000.00"},
			{"Data Science", "20000.00"},
			{"Android Development", "12000.00"},
		}

		for _, t := range technologies {
			var exists int
			if err := db.Raw("SELECT 1 FROM technologies WHERE name = ?", t.Name).Row().Scan(&exists); err != nil {
				if err := db.Exec("INSERT INTO technologies (name, price, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())", t.Name, t.Price).Error; err != nil {
					log.Fatalf("failed to insert technology %s: %v", t.Name, err)
				}
				fmt.Printf("Seeded technology: %s\n", t.Name)
			}
		}

		fmt.Println("Technologies seeded successfully")
	},
}

func ensureUser(db *gorm.DB, email, name, hash string) int64 {
	var id int64
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&id); err == nil {
		fmt.Println("user already exists; will ensure permissions:", email)
		return id
	}

	if err := db.Exec("INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())", email, name, hash).Error; err != nil {
		log.Fatalf("failed to insert user %s: %v", email, err)
	}
	if err := db.Raw("SELECT id FROM users WHERE email = ?", email).Row().Scan(&id); err != nil {
		log.Fatalf("failed to lookup user id %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
	return id
}

func grant(db *gorm.DB, userID int64, permission string) {
	var pid int64
	if err := db.Raw("SELECT id FROM permissions WHERE name = ?", permission).Row().Scan(&pid); err != nil {
		log.Fatalf("permission not found %s: %v", permission, err)
	}

	var exists int
	if err := db.Raw("SELECT 1 FROM user_permissions WHERE user_id = ? AND permission_id = ?", userID, pid).Row().Scan(&exists); err == nil {
		return
	}

	if err := db.Exec("INSERT INTO user_permissions (user_id, permission_id, granted_by, created_at) VALUES (?, ?, NULL, now())", userID, pid).Error; err != nil {
		log.Fatalf("failed to grant permission %s: %v", permission, err)
	}
}

func init() {
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "admin@digicoders.in", "email of the seeded admin account")
	seedCmd.Flags().StringVar(&adminPassword, "password", "", "password for seeded accounts (random when empty)")
}
