package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type PartnerStore struct {
	db querier
}

func NewPartnerStore(db *sql.DB) *PartnerStore {
	return &PartnerStore{db: db}
}

func scanPartner(scanner interface{ Scan(...any) error }) (*model.Partner, error) {
	var p model.Partner
	err := scanner.Scan(&p.ID, &p.Name, &p.KeyHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const partnerCols = `id, name, key_hash, created_at`

func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create registers a partner and returns it with the plaintext scanner
// secret. Only the bcrypt hash is stored.
func (s *PartnerStore) Create(ctx context.Context, name string) (*model.Partner, string, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash secret: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO partners (name, key_hash) VALUES (?, ?)`,
		name, string(hash),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert partner: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return p, secret, nil
}

func (s *PartnerStore) GetByID(ctx context.Context, id int64) (*model.Partner, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partnerCols+` FROM partners WHERE id = ?`, id)
	p, err := scanPartner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get partner: %w", err)
	}
	return p, nil
}

// Authenticate returns the partner when secret matches its stored hash, and
// nil otherwise.
func (s *PartnerStore) Authenticate(ctx context.Context, id int64, secret string) (*model.Partner, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.KeyHash), []byte(secret)); err != nil {
		return nil, nil
	}
	return p, nil
}
