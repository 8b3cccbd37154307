package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates the tables this service owns if they do not
// exist yet.  Catalog tables (users, payment_cards, products,
// show_times, tickets, promotions) are included so a fresh local
// instance is usable without a separate migration step; in shared
// environments the statements are no-ops.
func InitSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			full_name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			phone_number VARCHAR(32) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS payment_cards (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT UNSIGNED NOT NULL,
			gateway_token VARCHAR(128) NOT NULL,
			brand VARCHAR(32) NOT NULL,
			last4 CHAR(4) NOT NULL,
			KEY idx_payment_cards_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS show_times (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			movie_title VARCHAR(255) NOT NULL,
			hall_name VARCHAR(255) NOT NULL,
			starts_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			show_time_id BIGINT UNSIGNED NOT NULL,
			seat_row VARCHAR(4) NOT NULL,
			seat_column INT UNSIGNED NOT NULL,
			price_cents BIGINT NOT NULL,
			reservation_id BIGINT UNSIGNED NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_tickets_seat (show_time_id, seat_row, seat_column),
			KEY idx_tickets_reservation (reservation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price_cents BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS promotions (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			code VARCHAR(64) NOT NULL UNIQUE,
			discount DOUBLE NOT NULL,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			max_usage INT UNSIGNED NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT UNSIGNED NOT NULL,
			show_time_id BIGINT UNSIGNED NOT NULL,
			email VARCHAR(255) NOT NULL,
			phone_number VARCHAR(32) NOT NULL,
			original_price_cents BIGINT NOT NULL,
			total_price_cents BIGINT NOT NULL,
			payment_ref VARCHAR(128) NOT NULL,
			promotion_id BIGINT UNSIGNED NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			KEY idx_reservations_user (user_id),
			KEY idx_reservations_show_time (show_time_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reservation_products (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			reservation_id BIGINT UNSIGNED NOT NULL,
			product_id BIGINT UNSIGNED NOT NULL,
			quantity INT UNSIGNED NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			KEY idx_reservation_products_reservation (reservation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS promotion_usages (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			promotion_id BIGINT UNSIGNED NOT NULL,
			user_id BIGINT UNSIGNED NOT NULL,
			reservation_id BIGINT UNSIGNED NOT NULL,
			used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_promotion_usages (promotion_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS payment_refunds (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			payment_ref VARCHAR(128) NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency VARCHAR(8) NOT NULL,
			reason VARCHAR(255) NOT NULL,
			status ENUM('PENDING','DONE') NOT NULL DEFAULT 'PENDING',
			attempts INT UNSIGNED NOT NULL DEFAULT 0,
			last_error TEXT NULL,
			next_attempt_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			KEY idx_payment_refunds_status (status, next_attempt_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
