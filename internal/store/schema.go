package store

const controlSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL DEFAULT '',
  department TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  disabled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  token_hash TEXT NOT NULL UNIQUE,
  expires_at TEXT NOT NULL,
  revoked_at TEXT,
  created_at TEXT NOT NULL,
  FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_users_department ON users(department);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
`

const blobSchemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
  id TEXT PRIMARY KEY,
  bucket TEXT NOT NULL,
  filename TEXT NOT NULL,
  content_type TEXT NOT NULL,
  length INTEGER NOT NULL,
  chunk_size INTEGER NOT NULL,
  chunk_count INTEGER NOT NULL,
  sha256 TEXT NOT NULL,
  backend TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS blob_chunks (
  bucket TEXT NOT NULL,
  blob_id TEXT NOT NULL,
  n INTEGER NOT NULL,
  data BLOB NOT NULL,
  PRIMARY KEY (bucket, blob_id, n)
);

CREATE INDEX IF NOT EXISTS idx_blobs_bucket_filename ON blobs(bucket, filename);
CREATE INDEX IF NOT EXISTS idx_blobs_bucket_created ON blobs(bucket, created_at);
`

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS about (
  id TEXT PRIMARY KEY,
  hod_name TEXT NOT NULL,
  hod_message TEXT NOT NULL,
  hod_image_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  status TEXT NOT NULL,
  category TEXT NOT NULL,
  coordinators TEXT NOT NULL,
  start_date TEXT,
  last_date TEXT,
  venue TEXT NOT NULL,
  organized_by TEXT,
  description TEXT NOT NULL,
  banner_id TEXT,
  brochure_id TEXT,
  event_image_ids TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS labs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  coordinators TEXT NOT NULL,
  technical_staff TEXT NOT NULL,
  address TEXT NOT NULL,
  specialization TEXT NOT NULL,
  webpage_url TEXT,
  description TEXT NOT NULL,
  objectives TEXT NOT NULL,
  capacity INTEGER NOT NULL,
  hardware_details TEXT NOT NULL,
  software_details TEXT NOT NULL,
  lab_image_ids TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS banners (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  sort_order INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS programs (
  id TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  students_male INTEGER NOT NULL,
  students_female INTEGER NOT NULL,
  seats_josaa INTEGER NOT NULL,
  seats_csab INTEGER NOT NULL,
  seats_dasa INTEGER NOT NULL,
  scheme TEXT NOT NULL,
  pso TEXT,
  peo TEXT,
  po TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_about_created ON about(created_at);
CREATE INDEX IF NOT EXISTS idx_events_start_date ON events(start_date);
CREATE INDEX IF NOT EXISTS idx_banners_order ON banners(sort_order, created_at);
CREATE INDEX IF NOT EXISTS idx_programs_created ON programs(created_at);
`
