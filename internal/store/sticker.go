package store

import "database/sql"

// UpsertSticker caches a sticker asset.
func (db *DB) UpsertSticker(s *Sticker) error {
	_, err := db.Exec(`
		INSERT INTO stickers (sticker_id, album_id, name, asset_url, asset_width, asset_height)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sticker_id) DO UPDATE SET
			album_id = excluded.album_id,
			name = excluded.name,
			asset_url = excluded.asset_url,
			asset_width = excluded.asset_width,
			asset_height = excluded.asset_height`,
		s.StickerID, s.AlbumID, s.Name, s.AssetURL, s.AssetWidth, s.AssetHeight)
	return err
}

// StickerExists reports whether a sticker id is locally cached.
func (db *DB) StickerExists(stickerID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM stickers WHERE sticker_id = ?`, stickerID).Scan(&n)
	return n > 0, err
}

// FindStickerByName resolves a sticker through the local album index.
func (db *DB) FindStickerByName(albumID, name string) (*Sticker, error) {
	var s Sticker
	err := db.QueryRow(`
		SELECT sticker_id, album_id, name, asset_url, asset_width, asset_height
		FROM stickers WHERE album_id = ? AND name = ?`, albumID, name).
		Scan(&s.StickerID, &s.AlbumID, &s.Name, &s.AssetURL, &s.AssetWidth, &s.AssetHeight)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
