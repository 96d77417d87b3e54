/*
Package ports defines the driven ports (interfaces) for the Parley orchestrator.

These interfaces decouple the routing core from external implementations, allowing
the orchestrator to work with various inference backends, storage backends and lock managers.

# Key Interfaces

  - Handler: A named capability that turns the dialogue history into a response text.
  - Classifier: The distinguished handler that selects the next handler by name.
  - DialogueStore: Responsible for persisting and loading session histories.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
*/
package ports
