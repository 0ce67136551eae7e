package store

const schemaSQL = `
-- Received boosts and streams, keyed by the node's invoice add_index
CREATE TABLE IF NOT EXISTS boosts (
  idx INTEGER PRIMARY KEY,
  time INTEGER NOT NULL,
  value_msat INTEGER NOT NULL,
  value_msat_total INTEGER NOT NULL,
  action INTEGER NOT NULL DEFAULT 0,
  sender TEXT NOT NULL DEFAULT '',
  app TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  podcast TEXT NOT NULL DEFAULT '',
  episode TEXT NOT NULL DEFAULT '',
  tlv TEXT NOT NULL DEFAULT '',
  remote_podcast TEXT,
  remote_episode TEXT
);

CREATE INDEX IF NOT EXISTS idx_boosts_action ON boosts(action, idx);

-- Outgoing boosts seen in the node's payment log, keyed by payment_index
CREATE TABLE IF NOT EXISTS payments (
  idx INTEGER PRIMARY KEY,
  time INTEGER NOT NULL,
  value_msat INTEGER NOT NULL,
  value_msat_total INTEGER NOT NULL,
  action INTEGER NOT NULL DEFAULT 0,
  sender TEXT NOT NULL DEFAULT '',
  app TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  podcast TEXT NOT NULL DEFAULT '',
  episode TEXT NOT NULL DEFAULT '',
  tlv TEXT NOT NULL DEFAULT '',
  remote_podcast TEXT,
  remote_episode TEXT,
  payment_pubkey TEXT NOT NULL DEFAULT '',
  payment_custom_key INTEGER NOT NULL DEFAULT 0,
  payment_custom_value TEXT NOT NULL DEFAULT '',
  payment_fee_msat INTEGER NOT NULL DEFAULT 0
);

-- Replies sent through the API, keyed by payment hash
CREATE TABLE IF NOT EXISTS sent_boosts (
  idx INTEGER PRIMARY KEY AUTOINCREMENT,
  time INTEGER NOT NULL,
  payment_hash TEXT NOT NULL UNIQUE,
  pubkey TEXT NOT NULL,
  custom_key INTEGER,
  custom_value TEXT,
  sender TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL DEFAULT '',
  podcast TEXT NOT NULL DEFAULT '',
  episode TEXT NOT NULL DEFAULT '',
  total_amt_msat INTEGER NOT NULL,
  total_fees_msat INTEGER NOT NULL,
  reply_boost_index INTEGER,
  tlv TEXT NOT NULL DEFAULT ''
);

-- Channel balance samples, one per second at most
CREATE TABLE IF NOT EXISTS wallet_balances (
  idx INTEGER PRIMARY KEY AUTOINCREMENT,
  time INTEGER NOT NULL UNIQUE,
  balance INTEGER NOT NULL
);
`
