// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metadata

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/googlegenomics/variantstore/internal/contig"
)

// ContigRecord is a row of the contigs table.
type ContigRecord struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"uniqueIndex;not null"`
	Offset int64  `gorm:"column:tiledb_column_offset;not null"`
	Length int64  `gorm:"not null"`
}

// TableName implements gorm's Tabler.
func (ContigRecord) TableName() string { return "contigs" }

// SampleRecord is a row of the samples table.  Row is the array row that
// holds the sample's calls.
type SampleRecord struct {
	ID   uint   `gorm:"primaryKey"`
	Row  int64  `gorm:"column:row_idx;uniqueIndex;not null"`
	Name string `gorm:"not null"`
}

// TableName implements gorm's Tabler.
func (SampleRecord) TableName() string { return "samples" }

// SQL loads metadata from a relational database.
type SQL struct {
	db *gorm.DB
}

func isDatabaseURL(url string) bool {
	_, err := parseDialector(url)
	return err == nil
}

func parseDialector(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite:///")), nil
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		return postgres.Open(url), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, url)
	}
}

// OpenSQL connects to the database at url, which is either
// sqlite:///path/to/file.db or a postgres:// connection URL.
func OpenSQL(ctx context.Context, url string) (*SQL, error) {
	dialector, err := parseDialector(url)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("opening database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %v", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %v", err)
	}
	return &SQL{db: db}, nil
}

// Migrate creates the contigs and samples tables if they do not exist.
func (s *SQL) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ContigRecord{}, &SampleRecord{})
}

// Save replaces the stored metadata with m.  Samples are stored with their
// position in m.Samples as row.
func (s *SQL) Save(ctx context.Context, m Metadata) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ContigRecord{}).Error; err != nil {
			return fmt.Errorf("clearing contigs: %v", err)
		}
		if err := tx.Where("1 = 1").Delete(&SampleRecord{}).Error; err != nil {
			return fmt.Errorf("clearing samples: %v", err)
		}
		if len(m.Contigs) > 0 {
			records := make([]ContigRecord, len(m.Contigs))
			for i, c := range m.Contigs {
				records[i] = ContigRecord{Name: c.Name, Offset: c.Offset, Length: c.Length}
			}
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("saving contigs: %v", err)
			}
		}
		if len(m.Samples) > 0 {
			records := make([]SampleRecord, len(m.Samples))
			for i, name := range m.Samples {
				records[i] = SampleRecord{Row: int64(i), Name: name}
			}
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("saving samples: %v", err)
			}
		}
		return nil
	})
}

// Load fetches contigs and samples concurrently.  Sample rows must be
// numbered densely from zero.
func (s *SQL) Load(ctx context.Context) (Metadata, error) {
	var (
		contigs []ContigRecord
		samples []SampleRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Order("tiledb_column_offset").Find(&contigs).Error; err != nil {
			return fmt.Errorf("loading contigs: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Order("row_idx").Find(&samples).Error; err != nil {
			return fmt.Errorf("loading samples: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Metadata{}, err
	}

	m := Metadata{
		Contigs: make([]contig.Contig, len(contigs)),
		Samples: make([]string, len(samples)),
	}
	for i, c := range contigs {
		m.Contigs[i] = contig.Contig{Name: c.Name, Offset: c.Offset, Length: c.Length}
	}
	for i, sample := range samples {
		if sample.Row != int64(i) {
			return Metadata{}, fmt.Errorf("sample %q has row %d, want %d", sample.Name, sample.Row, i)
		}
		m.Samples[i] = sample.Name
	}
	return m, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %v", err)
	}
	return sqlDB.Close()
}
