package postgres

// schema is applied statement by statement; dollar-quoted bodies make naive
// splitting on semicolons unsafe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS maps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		strategy_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS maps_name_key ON maps (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		map_id TEXT NOT NULL REFERENCES maps(id) ON DELETE CASCADE,
		current_version_id TEXT,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS strategy_versions (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
		version_number INTEGER NOT NULL CHECK (version_number > 0),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		change_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT strategy_versions_number_key UNIQUE (strategy_id, version_number),
		CONSTRAINT strategy_versions_owner_key UNIQUE (id, strategy_id)
	)`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'strategies_current_version_fk') THEN
			ALTER TABLE strategies ADD CONSTRAINT strategies_current_version_fk
				FOREIGN KEY (current_version_id) REFERENCES strategy_versions(id)
				DEFERRABLE INITIALLY DEFERRED;
		END IF;
	END
	$$`,
	`CREATE TABLE IF NOT EXISTS strategy_images (
		id TEXT PRIMARY KEY,
		strategy_id TEXT REFERENCES strategies(id) ON DELETE CASCADE,
		version_id TEXT,
		storage_path TEXT NOT NULL,
		bucket_name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		alt_text TEXT,
		position_in_content INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT strategy_images_version_fk FOREIGN KEY (version_id, strategy_id)
			REFERENCES strategy_versions(id, strategy_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS strategies_map_idx ON strategies(map_id)`,
	`CREATE INDEX IF NOT EXISTS strategy_images_strategy_idx ON strategy_images(strategy_id, version_id)`,
	`CREATE INDEX IF NOT EXISTS strategy_images_path_idx ON strategy_images(storage_path)`,
	`CREATE OR REPLACE FUNCTION maintain_strategy_count() RETURNS trigger LANGUAGE plpgsql AS $$
	BEGIN
		IF TG_OP = 'INSERT' THEN
			UPDATE maps SET strategy_count = strategy_count + 1 WHERE id = NEW.map_id;
			RETURN NEW;
		ELSIF TG_OP = 'DELETE' THEN
			UPDATE maps SET strategy_count = strategy_count - 1 WHERE id = OLD.map_id;
			RETURN OLD;
		ELSIF NEW.map_id IS DISTINCT FROM OLD.map_id THEN
			UPDATE maps SET strategy_count = strategy_count - 1 WHERE id = OLD.map_id;
			UPDATE maps SET strategy_count = strategy_count + 1 WHERE id = NEW.map_id;
		END IF;
		RETURN NEW;
	END
	$$`,
	`DROP TRIGGER IF EXISTS strategies_count ON strategies`,
	`CREATE TRIGGER strategies_count AFTER INSERT OR DELETE OR UPDATE OF map_id ON strategies
		FOR EACH ROW EXECUTE FUNCTION maintain_strategy_count()`,
	`CREATE OR REPLACE FUNCTION strategy_with_details(p_id TEXT) RETURNS JSON LANGUAGE sql STABLE AS $$
	SELECT json_build_object(
		'strategy', json_build_object(
			'id', s.id, 'map_id', s.map_id, 'current_version_id', s.current_version_id,
			'title', s.title, 'description', s.description,
			'created_at', s.created_at, 'updated_at', s.updated_at),
		'map', CASE WHEN m.id IS NULL THEN NULL ELSE json_build_object(
			'id', m.id, 'name', m.name, 'description', m.description, 'thumbnail_url', m.thumbnail_url,
			'metadata', m.metadata, 'strategy_count', m.strategy_count,
			'created_at', m.created_at, 'updated_at', m.updated_at) END,
		'current_version', CASE WHEN v.id IS NULL THEN NULL ELSE json_build_object(
			'id', v.id, 'strategy_id', v.strategy_id, 'version_number', v.version_number,
			'title', v.title, 'description', v.description, 'change_notes', v.change_notes,
			'created_at', v.created_at) END,
		'images', COALESCE((
			SELECT json_agg(json_build_object(
				'id', i.id, 'strategy_id', i.strategy_id, 'version_id', i.version_id,
				'storage_path', i.storage_path, 'bucket_name', i.bucket_name, 'url', i.url,
				'alt_text', i.alt_text, 'position_in_content', i.position_in_content,
				'created_at', i.created_at)
				ORDER BY i.position_in_content, i.created_at, i.id)
			FROM strategy_images i
			WHERE i.strategy_id = s.id
			  AND (i.version_id = v.id OR (v.id IS NULL AND i.version_id IS NULL))
		), '[]'::json))
	FROM strategies s
	LEFT JOIN maps m ON m.id = s.map_id
	LEFT JOIN strategy_versions v ON v.id = s.current_version_id
	WHERE s.id = p_id
	$$`,
	`CREATE OR REPLACE FUNCTION map_strategies(p_map_id TEXT) RETURNS JSON LANGUAGE sql STABLE AS $$
	SELECT CASE WHEN NOT EXISTS (SELECT 1 FROM maps WHERE id = p_map_id) THEN NULL ELSE COALESCE((
		SELECT json_agg(json_build_object(
			'strategy', json_build_object(
				'id', s.id, 'map_id', s.map_id, 'current_version_id', s.current_version_id,
				'title', s.title, 'description', s.description,
				'created_at', s.created_at, 'updated_at', s.updated_at),
			'title', COALESCE(v.title, s.title),
			'description', COALESCE(v.description, s.description),
			'version_number', COALESCE(v.version_number, 0),
			'image_count', (
				SELECT COUNT(*) FROM strategy_images i
				WHERE i.strategy_id = s.id
				  AND (i.version_id = v.id OR (v.id IS NULL AND i.version_id IS NULL))))
			ORDER BY s.created_at DESC, s.id)
		FROM strategies s
		LEFT JOIN strategy_versions v ON v.id = s.current_version_id
		WHERE s.map_id = p_map_id
	), '[]'::json) END
	$$`,
}

const (
	strategyDetailQuery = `SELECT strategy_with_details($1)::text`
	mapStrategiesQuery  = `SELECT map_strategies($1)::text`
)
