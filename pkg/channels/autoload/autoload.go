// Package autoload registers all built-in channel factories via their
// init() functions. Import it for side effects only.
package autoload

import (
	_ "wayfarer/pkg/channels/telegram"
	_ "wayfarer/pkg/channels/web"
)
