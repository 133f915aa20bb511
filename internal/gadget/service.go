// Package gadget implements the gadget administration use cases: listing,
// creating, updating and deleting gadgets together with their stored image.
package gadget

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gadgets/internal/logger"
	"gadgets/internal/models"
	"gadgets/internal/storage"
)

// ImagePrefix is the storage namespace of gadget images.
const ImagePrefix = "gadgets/"

// Page is one page of a gadget listing.
type Page struct {
	Items       []models.Gadget
	Total       int64
	CurrentPage int
	LastPage    int
	PerPage     int
}

// From is the 1-based position of the first item on the page, 0 when empty.
func (p *Page) From() int {
	if len(p.Items) == 0 {
		return 0
	}
	return (p.CurrentPage-1)*p.PerPage + 1
}

// To is the position of the last item on the page, 0 when empty.
func (p *Page) To() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.From() + len(p.Items) - 1
}

// Service coordinates the repository and the image storage.
type Service struct {
	repo     *Repository
	store    storage.Storage
	log      *zap.Logger
	validate *validator.Validate
}

// NewService creates a new Service
func NewService(db *gorm.DB, store storage.Storage, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     NewRepository(db),
		store:    store,
		log:      log.Named("gadget"),
		validate: newValidator(),
	}
}

// Storage returns the image backend, used to resolve public URLs.
func (s *Service) Storage() storage.Storage {
	return s.store
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.log)
}

// List returns the requested page. Unknown sort fields and directions fall
// back to created_at desc.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	q = q.Normalize()

	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list gadgets: %w", err)
	}

	lastPage := int((total + PageSize - 1) / PageSize)
	if lastPage < 1 {
		lastPage = 1
	}

	return &Page{
		Items:       items,
		Total:       total,
		CurrentPage: q.Page,
		LastPage:    lastPage,
		PerPage:     PageSize,
	}, nil
}

// Get loads a gadget with its creator.
func (s *Service) Get(ctx context.Context, id uint) (*models.Gadget, error) {
	return s.repo.FindByID(ctx, id)
}

// Create validates in, stores the image (if any) and inserts the record.
func (s *Service) Create(ctx context.Context, in Input) (*models.Gadget, error) {
	log := s.logger(ctx)
	in = in.normalized()
	log.Debug("create gadget", inputFields(in)...)

	verr := &ValidationError{}
	f := validateFields(s.validate, in, verr)
	if err := checkCreator(ctx, s.repo, f.createdBy, verr); err != nil {
		return nil, err
	}

	var upload *NewFile
	var contentType string
	switch img := in.Image.(type) {
	case Absent:
	case ExistingPath:
		verr.Add("image", "The image field must be a file.")
	case NewFile:
		contentType = validateNewFile(img, verr)
		upload = &img
	default:
		return nil, fmt.Errorf("unknown image variant %T", img)
	}

	if !verr.empty() {
		log.Info("gadget validation failed", zap.Any("errors", verr.Fields))
		return nil, verr
	}

	g := &models.Gadget{
		Name:        f.name,
		Description: f.description,
		Price:       f.price,
		CreatedByID: f.createdBy,
	}

	if upload != nil {
		key, err := s.putImage(ctx, *upload, contentType)
		if err != nil {
			return nil, err
		}
		g.Image = &key
	}

	if err := s.repo.Create(ctx, g); err != nil {
		s.discard(ctx, g.ImageKey())
		return nil, fmt.Errorf("create gadget: %w", err)
	}

	log.Info("gadget created", zap.Uint("id", g.ID), zap.String("image", g.ImageKey()))
	return s.repo.FindByID(ctx, g.ID)
}

// Update replaces the fields of gadget id. An absent image, or the current
// key echoed back, keeps the stored image; a new file replaces it and the
// previous blob is removed once the change is committed. The row is locked
// for the duration, so a concurrent delete or update cannot interleave.
func (s *Service) Update(ctx context.Context, id uint, in Input) (*models.Gadget, error) {
	log := s.logger(ctx).With(zap.Uint("id", id))

	in = in.normalized()
	log.Debug("update gadget", inputFields(in)...)

	var stored, previous string
	err := s.repo.Transaction(ctx, func(tx *Repository) error {
		g, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}

		verr := &ValidationError{}
		f := validateFields(s.validate, in, verr)
		if err := checkCreator(ctx, tx, f.createdBy, verr); err != nil {
			return err
		}

		var upload *NewFile
		var contentType string
		switch img := in.Image.(type) {
		case Absent:
		case ExistingPath:
			if img.Path != g.ImageKey() {
				verr.Add("image", "The image field must be a file.")
			}
		case NewFile:
			contentType = validateNewFile(img, verr)
			upload = &img
		default:
			return fmt.Errorf("unknown image variant %T", img)
		}

		if !verr.empty() {
			log.Info("gadget validation failed", zap.Any("errors", verr.Fields))
			return verr
		}

		g.Name = f.name
		g.Description = f.description
		g.Price = f.price
		g.CreatedByID = f.createdBy

		if upload != nil {
			key, err := s.putImage(ctx, *upload, contentType)
			if err != nil {
				return err
			}
			stored = key
			previous = g.ImageKey()
			g.Image = &stored
		}

		return tx.Update(ctx, g)
	})
	if err != nil {
		s.discard(ctx, stored)
		var verr *ValidationError
		var nf *NotFoundError
		var se *StorageError
		if errors.As(err, &verr) || errors.As(err, &nf) || errors.As(err, &se) {
			return nil, err
		}
		return nil, fmt.Errorf("update gadget %d: %w", id, err)
	}

	if previous != "" && previous != stored {
		s.discard(ctx, previous)
	}

	log.Info("gadget updated", zap.String("image", stored))
	return s.repo.FindByID(ctx, id)
}

// Delete removes the record and its image in one transaction. A failing
// image delete rolls the row delete back.
func (s *Service) Delete(ctx context.Context, id uint) error {
	log := s.logger(ctx).With(zap.Uint("id", id))

	err := s.repo.Transaction(ctx, func(tx *Repository) error {
		g, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		if !g.HasImage() {
			return nil
		}
		if err := s.store.Delete(ctx, g.ImageKey()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return &StorageError{Op: "delete", Key: g.ImageKey(), Err: err}
		}
		log.Info("gadget image deleted", zap.String("image", g.ImageKey()))
		return nil
	})
	if err != nil {
		var nf *NotFoundError
		var se *StorageError
		if errors.As(err, &nf) || errors.As(err, &se) {
			return err
		}
		return fmt.Errorf("delete gadget %d: %w", id, err)
	}

	log.Info("gadget deleted")
	return nil
}

func checkCreator(ctx context.Context, repo *Repository, id uint, verr *ValidationError) error {
	if verr.Has("created_by") {
		return nil
	}
	ok, err := repo.UserExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check creator: %w", err)
	}
	if !ok {
		verr.Add("created_by", "The selected created by is invalid.")
	}
	return nil
}

func (s *Service) putImage(ctx context.Context, f NewFile, contentType string) (string, error) {
	key := ImagePrefix + uuid.NewString() + extensionFor(contentType, f.Name)
	if err := s.store.Put(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), contentType); err != nil {
		s.logger(ctx).Error("store gadget image", zap.String("key", key), zap.Error(err))
		return "", &StorageError{Op: "store", Key: key, Err: err}
	}
	s.logger(ctx).Debug("gadget image stored", zap.String("key", key), zap.Int("size", len(f.Data)))
	return key, nil
}

// discard removes a blob the record no longer references. Failures are
// logged only; the record write has already been decided.
func (s *Service) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger(ctx).Warn("remove gadget image", zap.String("key", key), zap.Error(err))
	}
}

func inputFields(in Input) []zap.Field {
	fields := []zap.Field{
		zap.String("name", in.Name),
		zap.String("price", in.Price),
		zap.String("created_by", in.CreatedBy),
	}
	switch img := in.Image.(type) {
	case NewFile:
		fields = append(fields, zap.String("image", "new"), zap.String("filename", img.Name), zap.Int64("size", img.Size))
	case ExistingPath:
		fields = append(fields, zap.String("image", "existing"), zap.String("path", img.Path))
	default:
		fields = append(fields, zap.String("image", "absent"))
	}
	return fields
}
