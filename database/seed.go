/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// SeedResult describes one applied seed script.
type SeedResult struct {
	Bind         string
	Statements   int
	RowsAffected int64
	Duration     time.Duration
}

// SeedFile runs the SQL script at path against a bind.
func (m *Manager) SeedFile(ctx context.Context, bind string, path string) (*SeedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return m.Seed(ctx, bind, f)
}

// Seed runs every statement of script in one transaction. Statements end
// with a semicolon at the end of a line; blank lines and -- comments are
// skipped.
func (m *Manager) Seed(ctx context.Context, bind string, script io.Reader) (*SeedResult, error) {
	statements, err := splitStatements(script)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result := &SeedResult{Bind: bindName(bind), Statements: len(statements)}
	if len(statements) == 0 {
		return result, nil
	}
	err = m.RunInTx(ctx, bind, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute seed statement %q: %w", stmt, err)
			}
			n, _ := res.RowsAffected()
			result.RowsAffected += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	m.logger.Info("Seed script applied",
		"bind", result.Bind,
		"statements", result.Statements,
		"rows", result.RowsAffected,
		"duration", result.Duration,
	)
	return result, nil
}

func splitStatements(script io.Reader) ([]string, error) {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}
	scanner := bufio.NewScanner(script)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed script: %w", err)
	}
	flush()
	return statements, nil
}
