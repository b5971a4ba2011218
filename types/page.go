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

package types

// DefaultPerPage is used when a page request carries no positive size.
const DefaultPerPage = 10

// PageRequest asks for one zero-based page of PerPage items.
type PageRequest struct {
	Page    int `json:"page" yaml:"page"`
	PerPage int `json:"per_page" yaml:"per_page"`
}

// NewPageRequest constructs a PageRequest.
func NewPageRequest(page int, perPage int) *PageRequest {
	return &PageRequest{Page: page, PerPage: perPage}
}

func (p *PageRequest) GetPage() int {
	if p.Page < 0 {
		return 0
	}
	return p.Page
}

func (p *PageRequest) GetPerPage() int {
	if p.PerPage < 1 {
		return DefaultPerPage
	}
	return p.PerPage
}

func (p *PageRequest) GetOffset() int {
	return p.GetPage() * p.GetPerPage()
}

// Pagination holds one page of serialized rows together with its totals.
type Pagination struct {
	Items      []JsonObject `json:"items"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
}

// NewPagination builds the envelope and derives TotalPages by rounding up.
func NewPagination(items []JsonObject, total int, page int, perPage int) *Pagination {
	if items == nil {
		items = make([]JsonObject, 0)
	}
	return &Pagination{
		Items:      items,
		Total:      total,
		TotalPages: TotalPages(total, perPage),
		Page:       page,
		PerPage:    perPage,
	}
}

// TotalPages returns ceil(total/perPage), or 0 when perPage is not positive.
func TotalPages(total int, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
