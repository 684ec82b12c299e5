// Package app provides the application service layer.
//
// SlideService validates and applies slide mutations and announces each change through a
// domain.ChangeNotifier. Reaper deletes expired slides on a fixed interval. AuthService
// registers management accounts and checks their bcrypt-hashed passwords. Depends on
// domain interfaces, not concrete stores.
package app
