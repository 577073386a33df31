// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contractly Contributors

// Package auth is the authentication and authorization core of Contractly.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates an active User with a normalized email
//   - NewSession - creates a Session bound to a refresh token hash
//
// # Services
//
//   - AuthenticationService - credential verification under the lockout policy
//   - RegistrationService - account validation and creation
//   - PermissionResolver - effective permissions from roles and overrides
//   - TokenService - access token signing, validation and refresh rotation
//   - AuthOrchestrator - login, register, refresh, logout use cases
//   - SessionReaper - periodic revocation of expired sessions
//
// # Errors
//
// Expected outcomes are oops errors carrying one of the Code* constants;
// use ErrorCode and IsExpected to classify them. Everything else is an
// infrastructure failure.
//
// Stores join the transaction carried in the context by a Transactor. The
// postgres subpackage holds the production adapters, the memory subpackage
// an in-process implementation.
package auth
