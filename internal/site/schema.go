// internal/site/schema.go
//
// DDL for the site tables.
//
// Schema reference
//
//	site           one row per site; uk_site_custom_id and uk_site_name
//	               close the allocation and naming races.  name compares
//	               case- and accent-sensitively.
//	site_landlord  set relation, primary key (site_id, landlord_id).
//	site_investor  ordered relation, primary key (site_id, position).
//
// landlord, investor, user, manager, and user_manager are owned by other
// services.  They are created here only so a fresh database can serve
// expansion queries; this package never writes to them.
package site

// Migrations returns idempotent DDL in dependency order.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS site (
		    id          CHAR(36)     NOT NULL PRIMARY KEY,
		    custom_id   VARCHAR(32)  NOT NULL,
		    name        VARCHAR(128) COLLATE utf8mb4_0900_as_cs NOT NULL,
		    created_by  CHAR(36)     NULL,
		    is_deleted  TINYINT(1)   NOT NULL DEFAULT 0,
		    attributes  JSON         NOT NULL,
		    created_at  DATETIME(3)  NOT NULL,
		    updated_at  DATETIME(3)  NOT NULL,
		    UNIQUE KEY uk_site_custom_id (custom_id),
		    UNIQUE KEY uk_site_name (name),
		    KEY ix_site_live_created (is_deleted, created_at, id),
		    KEY ix_site_created_by (created_by)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_ai_ci`,

		`CREATE TABLE IF NOT EXISTS site_landlord (
		    site_id      CHAR(36) NOT NULL,
		    landlord_id  CHAR(36) NOT NULL,
		    PRIMARY KEY (site_id, landlord_id),
		    KEY ix_site_landlord_landlord (landlord_id),
		    CONSTRAINT fk_site_landlord_site FOREIGN KEY (site_id) REFERENCES site (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS site_investor (
		    site_id      CHAR(36)      NOT NULL,
		    position     INT UNSIGNED  NOT NULL,
		    investor_id  CHAR(36)      NOT NULL,
		    share        DECIMAL(7,4)  NOT NULL DEFAULT 0,
		    PRIMARY KEY (site_id, position),
		    KEY ix_site_investor_investor (investor_id),
		    CONSTRAINT fk_site_investor_site FOREIGN KEY (site_id) REFERENCES site (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS landlord (
		    id     CHAR(36)     NOT NULL PRIMARY KEY,
		    name   VARCHAR(128) NOT NULL,
		    email  VARCHAR(256) NOT NULL DEFAULT '',
		    phone  VARCHAR(32)  NOT NULL DEFAULT ''
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS investor (
		    id     CHAR(36)     NOT NULL PRIMARY KEY,
		    name   VARCHAR(128) NOT NULL,
		    email  VARCHAR(256) NOT NULL DEFAULT ''
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		"CREATE TABLE IF NOT EXISTS `user` (" + `
		    id        CHAR(36)     NOT NULL PRIMARY KEY,
		    name      VARCHAR(128) NOT NULL,
		    email     VARCHAR(256) NOT NULL,
		    password  VARCHAR(255) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS manager (
		    id     CHAR(36)     NOT NULL PRIMARY KEY,
		    name   VARCHAR(128) NOT NULL,
		    email  VARCHAR(256) NOT NULL DEFAULT ''
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS user_manager (
		    user_id     CHAR(36)     NOT NULL,
		    position    INT UNSIGNED NOT NULL,
		    manager_id  CHAR(36)     NOT NULL,
		    PRIMARY KEY (user_id, position)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
}
