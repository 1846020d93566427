// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

// Repository contains a record from the `repos` table.
type Repository struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}
