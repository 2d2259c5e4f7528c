package mysql

// One table holds every collection. seq gives a stable retrieval order,
// natural_key enforces per-collection uniqueness beyond the id (NULLs do not
// collide), and version is the compare-and-swap token.
const createDocumentsSQL = `
CREATE TABLE IF NOT EXISTS documents (
  seq         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
  collection  VARCHAR(64)     NOT NULL,
  id          VARCHAR(64)     NOT NULL,
  natural_key VARCHAR(512)    NULL,
  version     BIGINT          NOT NULL DEFAULT 1,
  body        JSON            NOT NULL,
  created_at  TIMESTAMP(6)    NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
  updated_at  TIMESTAMP(6)    NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
  PRIMARY KEY (seq),
  UNIQUE KEY uq_documents_id (collection, id),
  UNIQUE KEY uq_documents_natural_key (collection, natural_key)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`

const insertDocSQL = `
INSERT INTO documents (collection, id, natural_key, version, body)
VALUES (?, ?, ?, 1, ?)
`

const insertDocsPrefix = "INSERT INTO documents (collection, id, natural_key, version, body)\nVALUES "

const insertDocsRow = "(?, ?, ?, 1, ?)"

const getDocSQL = `
SELECT version, body
FROM documents
WHERE collection = ? AND id = ?
`

const lockDocSQL = `
SELECT version
FROM documents
WHERE collection = ? AND id = ?
FOR UPDATE
`

const overwriteDocSQL = `
UPDATE documents
SET natural_key = ?, body = ?, version = version + 1
WHERE collection = ? AND id = ?
`

const replaceDocSQL = `
UPDATE documents
SET natural_key = ?, body = ?, version = version + 1
WHERE collection = ? AND id = ? AND version = ?
`

const deleteDocSQL = `
DELETE FROM documents
WHERE collection = ? AND id = ?
`

// Query is assembled from queryDocsPrefix, one condition per pushed-down
// field match, and queryDocsSuffix.
const queryDocsPrefix = "SELECT version, body FROM documents WHERE collection = ?"

const queryDocsSuffix = " ORDER BY seq"

const (
	condString = " AND JSON_UNQUOTE(JSON_EXTRACT(body, ?)) = ?"
	condJSON   = " AND JSON_EXTRACT(body, ?) = CAST(? AS JSON)"
)
