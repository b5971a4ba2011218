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

// Package schema builds the serialization shape of an entity graph and turns
// raw rows into nested JSON objects following it.
//
// A shape is a tree of Nodes. Relationships are followed until the disable
// tree excludes them or until following one would reach a node already on
// the path from the root, so self and mutually referencing entities always
// yield a finite tree. Generated nodes are memoized in a Cache.
package schema
