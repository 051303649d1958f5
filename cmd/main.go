// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/cobaltcore-dev/dhsmr/pkg/commands"
)

func main() {
	commands.Execute()
}
