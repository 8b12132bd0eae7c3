package sqlite

// schema is applied statement by statement on open. Every statement is
// idempotent so reopening an existing database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS maps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		description TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		strategy_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		map_id TEXT NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
		current_version_id TEXT REFERENCES strategy_versions(id) DEFERRABLE INITIALLY DEFERRED,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_versions (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL CHECK (version_number > 0),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		change_notes TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (strategy_id, version_number),
		UNIQUE (id, strategy_id)
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_images (
		id TEXT PRIMARY KEY,
		strategy_id TEXT REFERENCES strategies(id) ON DELETE CASCADE,
		version_id TEXT,
		storage_path TEXT NOT NULL,
		bucket_name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		alt_text TEXT,
		position_in_content INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (version_id, strategy_id) REFERENCES strategy_versions(id, strategy_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS strategies_map_idx ON strategies(map_id)`,
	`CREATE INDEX IF NOT EXISTS strategy_images_strategy_idx ON strategy_images(strategy_id, version_id)`,
	`CREATE INDEX IF NOT EXISTS strategy_images_path_idx ON strategy_images(storage_path)`,
	`CREATE TRIGGER IF NOT EXISTS strategies_count_insert AFTER INSERT ON strategies
	BEGIN
		UPDATE maps SET strategy_count = strategy_count + 1 WHERE id = NEW.map_id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS strategies_count_delete AFTER DELETE ON strategies
	BEGIN
		UPDATE maps SET strategy_count = strategy_count - 1 WHERE id = OLD.map_id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS strategies_count_move AFTER UPDATE OF map_id ON strategies
	WHEN OLD.map_id <> NEW.map_id
	BEGIN
		UPDATE maps SET strategy_count = strategy_count - 1 WHERE id = OLD.map_id;
		UPDATE maps SET strategy_count = strategy_count + 1 WHERE id = NEW.map_id;
	END`,
}

const imageObject = `json_object(
	'id', i.id, 'strategy_id', i.strategy_id, 'version_id', i.version_id,
	'storage_path', i.storage_path, 'bucket_name', i.bucket_name, 'url', i.url,
	'alt_text', i.alt_text, 'position_in_content', i.position_in_content, 'created_at', i.created_at)`

const strategyObject = `json_object(
	'id', s.id, 'map_id', s.map_id, 'current_version_id', s.current_version_id,
	'title', s.title, 'description', s.description, 'created_at', s.created_at, 'updated_at', s.updated_at)`

// imagesOfCurrent matches the current version's images, or the legacy
// unversioned rows when the strategy has no current version.
const imagesOfCurrent = `i.strategy_id = s.id AND (
	(v.id IS NOT NULL AND i.version_id = v.id) OR (v.id IS NULL AND i.version_id IS NULL))`

// Nested JSON values are wrapped in json() so they keep their JSON subtype
// when passing through CASE expressions and subqueries.
const strategyDetailQuery = `SELECT json_object(
	'strategy', json(` + strategyObject + `),
	'map', json(CASE WHEN m.id IS NULL THEN NULL ELSE json_object(
		'id', m.id, 'name', m.name, 'description', m.description, 'thumbnail_url', m.thumbnail_url,
		'metadata', json(m.metadata), 'strategy_count', m.strategy_count,
		'created_at', m.created_at, 'updated_at', m.updated_at) END),
	'current_version', json(CASE WHEN v.id IS NULL THEN NULL ELSE json_object(
		'id', v.id, 'strategy_id', v.strategy_id, 'version_number', v.version_number,
		'title', v.title, 'description', v.description, 'change_notes', v.change_notes,
		'created_at', v.created_at) END),
	'images', json((SELECT json_group_array(json(` + imageObject + `)) FROM strategy_images i WHERE ` + imagesOfCurrent + `))
)
FROM strategies s
LEFT JOIN maps m ON m.id = s.map_id
LEFT JOIN strategy_versions v ON v.id = s.current_version_id
WHERE s.id = ?1`

const mapStrategiesQuery = `SELECT CASE WHEN NOT EXISTS (SELECT 1 FROM maps WHERE id = ?1) THEN NULL ELSE (
	SELECT json_group_array(json(summary)) FROM (
		SELECT json_object(
			'strategy', json(` + strategyObject + `),
			'title', COALESCE(v.title, s.title),
			'description', COALESCE(v.description, s.description),
			'version_number', COALESCE(v.version_number, 0),
			'image_count', (SELECT COUNT(*) FROM strategy_images i WHERE ` + imagesOfCurrent + `)
		) AS summary
		FROM strategies s
		LEFT JOIN strategy_versions v ON v.id = s.current_version_id
		WHERE s.map_id = ?1
	)
) END`
